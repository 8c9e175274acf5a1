// Package tables loads loot table definitions from a directory of YAML
// files, one table per file. Definitions are validated against a JSON
// Schema; a malformed pool or entry is skipped with a log line and its
// siblings load anyway, so one bad unit never takes down the catalog.
package tables

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"valloot.dev/internal/loot"
)

//go:embed schema.json
var schemaJSON string

var tableSchema = jsonschema.MustCompileString("loot_table.schema.json", schemaJSON)

// Catalog is the immutable set of loaded tables, keyed by unique name.
type Catalog struct {
	tables map[string]*loot.Table
}

// Table returns the named table, or nil when absent. Malformed definitions
// are simply absent.
func (c *Catalog) Table(name string) *loot.Table {
	if c == nil {
		return nil
	}
	return c.tables[name]
}

func (c *Catalog) Len() int { return len(c.tables) }

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type fileTable struct {
	Name              string      `yaml:"name"`
	FirstOpenOnly     *bool       `yaml:"first_open_only"`
	RespawnCooldownMs int64       `yaml:"respawn_cooldown_ms"`
	RespawnVariance   *float64    `yaml:"respawn_variance"`
	Pools             []yaml.Node `yaml:"pools"`
}

type filePool struct {
	Name      string      `yaml:"name"`
	Rolls     int         `yaml:"rolls"`
	RollBonus float64     `yaml:"roll_bonus"`
	Entries   []yaml.Node `yaml:"entries"`
}

type fileEntry struct {
	Kind        string         `yaml:"kind"`
	MinAmount   int            `yaml:"min_amount"`
	MaxAmount   int            `yaml:"max_amount"`
	Weight      float64        `yaml:"weight"`
	DisplayName string         `yaml:"display_name"`
	Lore        []string       `yaml:"lore"`
	Overwrite   bool           `yaml:"overwrite"`
	Conditions  fileConditions `yaml:"conditions"`
}

type fileConditions struct {
	Biome      string `yaml:"biome"`
	World      string `yaml:"world"`
	NightOnly  bool   `yaml:"night_only"`
	DayOnly    bool   `yaml:"day_only"`
	Skill      *struct {
		Name string `yaml:"name"`
		Min  int    `yaml:"min"`
	} `yaml:"skill"`
	Permission string `yaml:"permission"`
}

// Load reads every .yml/.yaml file in dir. Files that fail to parse or
// validate are skipped with a log line; Load errors only when the directory
// itself is unreadable.
func Load(dir string, logger *log.Logger) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read tables dir: %w", err)
	}

	cat := &Catalog{tables: map[string]*loot.Table{}}
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		ext := filepath.Ext(de.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		path := filepath.Join(dir, de.Name())
		table, err := loadFile(path, logger)
		if err != nil {
			logf(logger, "skipping table file %s: %v", de.Name(), err)
			continue
		}
		if _, dup := cat.tables[table.Name]; dup {
			logf(logger, "duplicate table name %q in %s; keeping latest", table.Name, de.Name())
		}
		cat.tables[table.Name] = table
	}
	logf(logger, "loaded %d loot tables from %s", len(cat.tables), dir)
	return cat, nil
}

func loadFile(path string, logger *log.Logger) (*loot.Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	ft := fileTable{}
	if err := yaml.Unmarshal(raw, &ft); err != nil {
		return nil, err
	}
	name := ft.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	firstOpenOnly := true
	if ft.FirstOpenOnly != nil {
		firstOpenOnly = *ft.FirstOpenOnly
	}
	variance := 10.0
	if ft.RespawnVariance != nil {
		variance = *ft.RespawnVariance
	}

	pools := make([]loot.Pool, 0, len(ft.Pools))
	for i := range ft.Pools {
		pool, err := loadPool(&ft.Pools[i], logger)
		if err != nil {
			logf(logger, "table %s: skipping pool %d: %v", name, i, err)
			continue
		}
		pools = append(pools, pool)
	}

	return loot.NewTable(name, pools, firstOpenOnly,
		time.Duration(ft.RespawnCooldownMs)*time.Millisecond, variance), nil
}

func loadPool(node *yaml.Node, logger *log.Logger) (loot.Pool, error) {
	fp := filePool{Rolls: 1}
	if err := node.Decode(&fp); err != nil {
		return loot.Pool{}, err
	}

	entries := make([]loot.Entry, 0, len(fp.Entries))
	for i := range fp.Entries {
		entry, err := loadEntry(&fp.Entries[i])
		if err != nil {
			logf(logger, "pool %s: skipping entry %d: %v", fp.Name, i, err)
			continue
		}
		entries = append(entries, entry)
	}
	return loot.NewPool(fp.Name, entries, fp.Rolls, fp.RollBonus), nil
}

func loadEntry(node *yaml.Node) (loot.Entry, error) {
	fe := fileEntry{MinAmount: 1, MaxAmount: 1, Weight: 1}
	if err := node.Decode(&fe); err != nil {
		return loot.Entry{}, err
	}
	if fe.Kind == "" {
		return loot.Entry{}, fmt.Errorf("missing item kind")
	}
	return loot.NewEntry(fe.Kind, fe.MinAmount, fe.MaxAmount, fe.Weight,
		fe.DisplayName, fe.Lore, conditions(fe.Conditions), fe.Overwrite), nil
}

// conditions maps the fixed condition vocabulary onto predicates. Unknown
// keys are dropped by the YAML decoder, which degrades them to always-true.
func conditions(fc fileConditions) []loot.Condition {
	var conds []loot.Condition
	if fc.Biome != "" {
		conds = append(conds, loot.BiomeIs(fc.Biome))
	}
	if fc.World != "" {
		conds = append(conds, loot.WorldIs(fc.World))
	}
	if fc.NightOnly {
		conds = append(conds, loot.NightOnly())
	}
	if fc.DayOnly {
		conds = append(conds, loot.DayOnly())
	}
	if fc.Skill != nil && fc.Skill.Name != "" {
		conds = append(conds, loot.SkillAtLeast(fc.Skill.Name, fc.Skill.Min))
	}
	if fc.Permission != "" {
		conds = append(conds, loot.HasPermission(fc.Permission))
	}
	return conds
}

// validate checks a definition against the embedded JSON Schema. The YAML
// document is normalized through a JSON round trip first so schema types
// line up.
func validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	jsonRaw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var normalized any
	if err := json.Unmarshal(jsonRaw, &normalized); err != nil {
		return err
	}
	if err := tableSchema.Validate(normalized); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

func logf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}
