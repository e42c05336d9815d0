package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var validNamingTypes = map[string]struct{}{
	"ISO_639_1":   {},
	"ISO_639_2_T": {},
	"ISO_639_2_B": {},
	"NAME":        {},
	"NATIVE":      {},
}

// Validate ensures the configuration is usable. Azure credentials are not
// required here: the daemon starts without them and refuses transcription
// requests until they are configured.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateNaming(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validatePathMapping(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return fmt.Errorf("server.bind %q: %w", c.Server.Bind, err)
	}
	return nil
}

func (c *Config) validateNaming() error {
	if _, ok := validNamingTypes[c.Naming.NamingType]; !ok {
		return fmt.Errorf("naming.naming_type %q: must be one of ISO_639_1, ISO_639_2_T, ISO_639_2_B, NAME, NATIVE", c.Naming.NamingType)
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if strings.TrimSpace(c.Processing.TranscodeDir) == "" {
		return errors.New("processing.transcode_dir must be set")
	}
	return nil
}

func (c *Config) validatePathMapping() error {
	if c.PathMapping.Enabled && strings.TrimSpace(c.PathMapping.FromPath) == "" {
		return errors.New("path_mapping.from_path must be set when path mapping is enabled")
	}
	return nil
}

func (c *Config) validateDetection() error {
	candidates := c.Transcription.DetectionCandidates()
	if len(candidates) == 0 {
		return errors.New("transcription.language_detection_candidates must list at least one locale")
	}
	// More than four is allowed here; normalization keeps the first four
	// the speech service supports.
	return nil
}
