package schema

import "github.com/dshills/rulebook/internal/rules/rule"

// Categories used by the built-in rules.
const (
	CategoryCreative     = "creative"
	CategorySurvival     = "survival"
	CategoryTNT          = "tnt"
	CategoryOptimization = "optimization"
	CategoryCommand      = "command"
	CategoryFeature      = "feature"
	CategoryExperimental = "experimental"
	CategoryClient       = "client"
	CategoryCore         = "core"
)

// Rules the application itself reads.
const (
	// LanguageRule selects the display language.
	LanguageRule = "language"
	// PermissionRule selects who may use the rules command.
	PermissionRule = "commandPermissionLevel"
)

// Builtin returns the default server rule set.
func Builtin() []Descriptor {
	return []Descriptor{
		{
			Name:        LanguageRule,
			Kind:        rule.KindEnum,
			Default:     "en_us",
			Description: "Sets the language for rule names, descriptions and menus",
			Categories:  []string{CategoryCore},
			Options:     []string{"en_us", "es_es"},
		},
		{
			Name:        PermissionRule,
			Kind:        rule.KindEnum,
			Default:     "ops",
			Description: "Permission level required to change rules",
			Categories:  []string{CategoryCore, CategoryCommand},
			Options:     []string{"true", "false", "ops", "2", "4"},
			ExtraInfo:   []string{"true allows everyone, false only the console, ops and numbers require that op level"},
		},
		{
			Name:        "fillLimit",
			Kind:        rule.KindInt,
			Default:     "32768",
			Description: "Customizable fill/clone volume limit",
			Categories:  []string{CategoryCreative},
			Options:     []string{"32768", "250000", "1000000"},
			Min:         Int(1),
			Max:         Int(20000000),
		},
		{
			Name:        "fillUpdates",
			Kind:        rule.KindBool,
			Default:     "true",
			Description: "Fill, clone and setblock send block updates",
			Categories:  []string{CategoryCreative},
		},
		{
			Name:        "pushLimit",
			Kind:        rule.KindInt,
			Default:     "12",
			Description: "Customizable piston push limit",
			Categories:  []string{CategoryCreative},
			Options:     []string{"10", "12", "14", "100"},
			Min:         Int(1),
			Max:         Int(1024),
		},
		{
			Name:        "optimizedTNT",
			Kind:        rule.KindBool,
			Default:     "false",
			Description: "TNT causes less lag when exploding in the same spot and in liquids",
			Categories:  []string{CategoryTNT, CategoryOptimization},
		},
		{
			Name:        "tntPrimerMomentumRemoved",
			Kind:        rule.KindBool,
			Default:     "false",
			Description: "Removes random TNT momentum when primed",
			Categories:  []string{CategoryCreative, CategoryTNT},
		},
		{
			Name:        "xpNoCooldown",
			Kind:        rule.KindBool,
			Default:     "false",
			Description: "Players absorb XP instantly, without delay",
			Categories:  []string{CategoryCreative},
		},
		{
			Name:        "viewDistance",
			Kind:        rule.KindInt,
			Default:     "0",
			Description: "Changes the view distance of the server",
			Categories:  []string{CategoryCreative, CategoryClient},
			Options:     []string{"0", "12", "16", "32"},
			Min:         Int(0),
			Max:         Int(32),
			ExtraInfo:   []string{"0 uses the server properties value"},
		},
		{
			Name:        "commandSpawn",
			Kind:        rule.KindEnum,
			Default:     "ops",
			Description: "Enables the spawn command for tracking mob spawns",
			Categories:  []string{CategoryCommand},
			Options:     []string{"true", "false", "ops"},
		},
		{
			Name:        "commandLog",
			Kind:        rule.KindEnum,
			Default:     "true",
			Description: "Enables the log command to monitor events via hud",
			Categories:  []string{CategoryCommand},
			Options:     []string{"true", "false", "ops"},
		},
		{
			Name:        "lagFreeSpawning",
			Kind:        rule.KindBool,
			Default:     "false",
			Description: "Spawning requires much less CPU and memory",
			Categories:  []string{CategoryOptimization, CategoryExperimental},
		},
		{
			Name:        "motd",
			Kind:        rule.KindString,
			Default:     "_",
			Description: "Sets a different message of the day, _ keeps the server default",
			Categories:  []string{CategoryFeature},
			Options:     []string{"_"},
			MaxLength:   59,
		},
		{
			Name:        "stackableShulkerBoxes",
			Kind:        rule.KindBool,
			Default:     "false",
			Description: "Empty shulker boxes stack when thrown or picked up",
			Categories:  []string{CategorySurvival, CategoryFeature},
		},
	}
}
