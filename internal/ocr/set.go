package ocr

import (
	"fmt"
	"time"

	"github.com/adverant/nexus/idextract-worker/internal/clients"
)

// SetConfig selects the backends a process runs with.
type SetConfig struct {
	PrimaryLangs   string
	GeneralLangs   string
	TessdataPrefix string
	// VisionURL replaces the primary Tesseract backend with the remote
	// vision service when set.
	VisionURL     string
	VisionTimeout time.Duration
}

// Set is the ordered primary + general backend list and the Tesseract
// handles it owns.
type Set struct {
	Backends []Backend
	// Vision is the remote backend, nil when not configured.
	Vision     *Vision
	tesseracts []*Tesseract
}

// NewSet builds the primary multilingual backend followed by the
// general one. The caller must Close the set at shutdown.
func NewSet(cfg *SetConfig) (*Set, error) {
	set := &Set{}

	if cfg.VisionURL != "" {
		client := clients.NewVisionClient(cfg.VisionURL, cfg.VisionTimeout)
		set.Vision = NewVision(client, "multi")
		set.Backends = append(set.Backends, set.Vision)
	} else {
		primary, err := NewTesseract(&TesseractConfig{
			Name:           "tesseract-primary",
			Languages:      cfg.PrimaryLangs,
			TessdataPrefix: cfg.TessdataPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create primary backend: %w", err)
		}
		set.add(primary)
	}

	general, err := NewTesseract(&TesseractConfig{
		Name:           "tesseract-general",
		Languages:      cfg.GeneralLangs,
		TessdataPrefix: cfg.TessdataPrefix,
	})
	if err != nil {
		set.Close()
		return nil, fmt.Errorf("failed to create general backend: %w", err)
	}
	set.add(general)

	return set, nil
}

func (s *Set) add(t *Tesseract) {
	s.Backends = append(s.Backends, t)
	s.tesseracts = append(s.tesseracts, t)
}

// Close releases every Tesseract handle, returning the first error.
func (s *Set) Close() error {
	var first error
	for _, t := range s.tesseracts {
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.tesseracts = nil
	return first
}
