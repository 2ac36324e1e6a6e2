package fleet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/virtualfleet/ocpp-vcp-fleet/internal/config"
)

// rosterDocument is the on-disk shape of the roster file.
type rosterDocument struct {
	Chargers []config.ChargerConfig `json:"chargers"`
}

// SaveRoster writes the current roster to disk atomically: the new
// contents land in a temp file in the same directory, which is then
// renamed over the target path so readers never observe a partial write.
func (m *Manager) SaveRoster() error {
	m.mu.RLock()
	doc := rosterDocument{Chargers: make([]config.ChargerConfig, 0, len(m.chargers))}
	for _, mc := range m.chargers {
		doc.Chargers = append(doc.Chargers, mc.Config)
	}
	m.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal roster: %w", err)
	}

	dir := filepath.Dir(m.rosterPath)
	tmp, err := os.CreateTemp(dir, ".roster-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp roster file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp roster file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp roster file: %w", err)
	}

	if err := os.Rename(tmpPath, m.rosterPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to commit roster file: %w", err)
	}
	return nil
}

// LoadRoster reads the roster file and registers every charger it
// describes. A missing file is not an error: the fleet simply starts
// empty, to be populated via Add or a later LoadRoster once the file
// exists.
func (m *Manager) LoadRoster() error {
	data, err := os.ReadFile(m.rosterPath)
	if err != nil {
		if os.IsNotExist(err) {
			m.log.Info().Str("path", m.rosterPath).Msg("no roster file found, starting with an empty fleet")
			return nil
		}
		m.log.Warn().Err(err).Str("path", m.rosterPath).Msg("failed to read roster file, starting with an empty fleet")
		return nil
	}

	var doc rosterDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		m.log.Warn().Err(err).Str("path", m.rosterPath).Msg("failed to parse roster file, starting with an empty fleet")
		return nil
	}

	for _, cfg := range doc.Chargers {
		if err := m.Add(cfg); err != nil {
			m.log.Warn().Err(err).Str("cp_id", cfg.CpId).Msg("skipping invalid roster entry")
		}
	}
	return nil
}
