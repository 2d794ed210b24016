package store

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// BotConfig is the assistant persona.
type BotConfig struct {
	Name              string   `json:"name" yaml:"name" validate:"required"`
	Personality       string   `json:"personality" yaml:"personality"`
	Language          string   `json:"language" yaml:"language" validate:"required"`
	MaxResponseLength int      `json:"max_response_length" yaml:"max_response_length" validate:"gt=0"`
	Temperature       float64  `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	Rules             []string `json:"rules" yaml:"rules"`
}

// Service is one offering listed in the knowledge base.
type Service struct {
	Name        string   `json:"name" yaml:"name" validate:"required"`
	Description string   `json:"description" yaml:"description"`
	Features    []string `json:"features,omitempty" yaml:"features,omitempty"`
	Price       string   `json:"price,omitempty" yaml:"price,omitempty"`
}

// FAQItem is a question/answer pair.
type FAQItem struct {
	Question string `json:"question" yaml:"question" validate:"required"`
	Answer   string `json:"answer" yaml:"answer" validate:"required"`
}

// CompanyData is the knowledge base proper.
type CompanyData struct {
	CompanyName    string            `json:"company_name" yaml:"company_name" validate:"required"`
	Description    string            `json:"description" yaml:"description"`
	Services       []Service         `json:"services" yaml:"services" validate:"dive"`
	FAQ            []FAQItem         `json:"faq" yaml:"faq" validate:"dive"`
	Contacts       map[string]string `json:"contacts" yaml:"contacts"`
	AdditionalInfo map[string]any    `json:"additional_info,omitempty" yaml:"additional_info,omitempty"`
}

// Document is the on-disk knowledge file.
type Document struct {
	BotConfig   BotConfig   `json:"bot_config" yaml:"bot_config"`
	CompanyData CompanyData `json:"company_data" yaml:"company_data"`
}

// DefaultBotConfig returns the persona used when the file omits one.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		Name:              "Atabot",
		Personality:       "helpful and friendly",
		Language:          "Indonesian",
		MaxResponseLength: 500,
		Temperature:       0.7,
		Rules:             []string{},
	}
}

// DefaultDocument returns the document served when no knowledge file exists.
func DefaultDocument() *Document {
	return &Document{
		BotConfig: DefaultBotConfig(),
		CompanyData: CompanyData{
			CompanyName: "Company",
			Description: "Welcome to our service",
			Services:    []Service{},
			FAQ:         []FAQItem{},
			Contacts:    map[string]string{},
		},
	}
}

// Store reads and writes the knowledge file and its backups.
type Store struct {
	path      string
	backupDir string

	// mu serializes writers; readers see whole files thanks to atomic renames.
	mu       sync.Mutex
	validate *validator.Validate
	now      func() time.Time
}

// New creates a store for the knowledge file at path.
func New(path, backupDir string) *Store {
	return &Store{
		path:      path,
		backupDir: backupDir,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// Path returns the knowledge file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the knowledge file. A missing file yields the default document.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Error("knowledge file not found, serving defaults", "path", s.path)
			return DefaultDocument(), nil
		}
		return nil, errors.Wrapf(err, "failed to read knowledge file %s", s.path)
	}

	doc, err := s.decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse knowledge file %s", s.path)
	}
	return doc, nil
}

// Validate checks a document against its field constraints.
func (s *Store) Validate(doc *Document) error {
	if doc == nil {
		return errors.New("document is required")
	}
	return s.validate.Struct(doc)
}

// Save validates doc, backs up the current file and replaces it.
func (s *Store) Save(doc *Document) error {
	if err := s.Validate(doc); err != nil {
		return errors.Wrap(err, "invalid knowledge document")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.backupLocked(); err != nil {
		return err
	}
	return s.writeLocked(doc)
}

// UpdateBotConfig replaces only the persona section. No backup is taken.
func (s *Store) UpdateBotConfig(cfg BotConfig) error {
	if err := s.validate.Struct(cfg); err != nil {
		return errors.Wrap(err, "invalid bot config")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Load()
	if err != nil {
		return err
	}
	if cfg.Rules == nil {
		cfg.Rules = []string{}
	}
	doc.BotConfig = cfg
	return s.writeLocked(doc)
}

func (s *Store) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

func (s *Store) decode(data []byte) (*Document, error) {
	// Decoding over the defaults keeps them for fields the file omits.
	doc := DefaultDocument()
	doc.CompanyData = CompanyData{}

	if s.isYAML() {
		if err := yaml.Unmarshal(data, doc); err != nil {
			return nil, err
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(doc); err != nil {
			return nil, err
		}
	}

	if doc.BotConfig.Rules == nil {
		doc.BotConfig.Rules = []string{}
	}
	if doc.CompanyData.Services == nil {
		doc.CompanyData.Services = []Service{}
	}
	if doc.CompanyData.FAQ == nil {
		doc.CompanyData.FAQ = []FAQItem{}
	}
	if doc.CompanyData.Contacts == nil {
		doc.CompanyData.Contacts = map[string]string{}
	}
	return doc, nil
}

func (s *Store) encode(doc *Document) ([]byte, error) {
	if s.isYAML() {
		return yaml.Marshal(doc)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// writeLocked writes doc through a temp file and rename so readers never see a partial file.
func (s *Store) writeLocked(doc *Document) error {
	data, err := s.encode(doc)
	if err != nil {
		return errors.Wrap(err, "failed to encode knowledge document")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrapf(err, "failed to replace %s", s.path)
	}
	return nil
}
