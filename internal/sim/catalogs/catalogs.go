package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"

	"riftminer.ai/internal/sim/bins"
	"riftminer.ai/internal/sim/item"
	"riftminer.ai/internal/sim/rewards"
)

type Catalogs struct {
	Items        ItemCatalog
	MinerRecipes MinerRecipeCatalog
}

type ItemCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string
}

type ItemDef struct {
	ID            string         `json:"id"`
	Kind          string         `json:"kind"` // "MATERIAL","SHARD","TOOL"
	MaxStack      int            `json:"max_stack,omitempty"`
	MaxDurability int            `json:"max_durability,omitempty"`
	Meta          map[string]int `json:"meta,omitempty"`
}

type MinerRecipeCatalog struct {
	ByID    map[string]MinerRecipeDef
	ByInput map[string][]MinerRecipeDef
	Digest  string

	items *ItemCatalog
}

type MinerRecipeDef struct {
	RecipeID string    `json:"recipe_id"`
	Input    string    `json:"input"`
	Output   ItemCount `json:"output"`
	Weight   int       `json:"weight"`
}

type ItemCount struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	if err := loadMinerRecipes(filepath.Join(configDir, "miner_recipes.json"), &c.Items, &c.MinerRecipes); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.json: empty id")
		}
		if d.MaxStack < 0 || d.MaxDurability < 0 {
			return fmt.Errorf("items.json: %s: negative limits", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadMinerRecipes(path string, items *ItemCatalog, out *MinerRecipeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	out.items = items

	var defs []MinerRecipeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("miner_recipes.json: %w", err)
	}
	out.ByID = map[string]MinerRecipeDef{}
	out.ByInput = map[string][]MinerRecipeDef{}
	for _, r := range defs {
		if r.RecipeID == "" {
			return fmt.Errorf("miner_recipes.json: empty recipe_id")
		}
		if _, dup := out.ByID[r.RecipeID]; dup {
			return fmt.Errorf("miner_recipes.json: duplicate recipe_id %s", r.RecipeID)
		}
		if _, ok := items.Defs[r.Input]; !ok {
			return fmt.Errorf("miner_recipes.json: %s: unknown input %q", r.RecipeID, r.Input)
		}
		if _, ok := items.Defs[r.Output.Item]; !ok {
			return fmt.Errorf("miner_recipes.json: %s: unknown output %q", r.RecipeID, r.Output.Item)
		}
		if r.Output.Count <= 0 {
			return fmt.Errorf("miner_recipes.json: %s: output count must be positive", r.RecipeID)
		}
		if r.Weight <= 0 {
			return fmt.Errorf("miner_recipes.json: %s: %w", r.RecipeID, rewards.ErrInvalidWeight)
		}
		out.ByID[r.RecipeID] = r
		out.ByInput[r.Input] = append(out.ByInput[r.Input], r)
	}
	for in := range out.ByInput {
		rs := out.ByInput[in]
		sort.Slice(rs, func(i, j int) bool { return rs[i].RecipeID < rs[j].RecipeID })
	}
	return nil
}

// NewStack builds a fresh stack using the item's durability.
func (c *ItemCatalog) NewStack(id string, count int) item.Stack {
	d := c.Defs[id]
	return item.New(id, count, d.MaxDurability)
}

// StackLimit honours max_stack. Damageable items without one stack to 1, everything else to
// defaultMax (bins.DefaultMaxStack when <= 0).
func (c *ItemCatalog) StackLimit(defaultMax int) bins.StackLimit {
	if defaultMax <= 0 {
		defaultMax = bins.DefaultMaxStack
	}
	return func(s item.Stack) int {
		if d, ok := c.Defs[s.Item]; ok && d.MaxStack > 0 {
			return d.MaxStack
		}
		if s.Damageable() {
			return 1
		}
		return defaultMax
	}
}

// MetaDefaults returns a copy of the item's default metadata.
func (c *ItemCatalog) MetaDefaults(id string) map[string]int {
	d, ok := c.Defs[id]
	if !ok || len(d.Meta) == 0 {
		return nil
	}
	return maps.Clone(d.Meta)
}

// Lookup returns the weighted outputs for an input, ordered by recipe id.
func (c *MinerRecipeCatalog) Lookup(input string) []rewards.Candidate {
	rs := c.ByInput[input]
	if len(rs) == 0 {
		return nil
	}
	out := make([]rewards.Candidate, 0, len(rs))
	for _, r := range rs {
		var tmpl item.Stack
		if c.items != nil {
			tmpl = c.items.NewStack(r.Output.Item, r.Output.Count)
		} else {
			tmpl = item.New(r.Output.Item, r.Output.Count, 0)
		}
		out = append(out, rewards.Candidate{Template: tmpl, Weight: r.Weight})
	}
	return out
}

// Accepts reports whether the input has at least one recipe.
func (c *MinerRecipeCatalog) Accepts(input string) bool { return len(c.ByInput[input]) > 0 }
