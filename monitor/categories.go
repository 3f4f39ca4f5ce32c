package monitor

import "strings"

// Category is the coarse class an observed action falls into.
type Category string

const (
	Military    Category = "military"
	Defensive   Category = "defensive"
	Economic    Category = "economic"
	Expansion   Category = "expansion"
	Trade       Category = "trade"
	Exploration Category = "exploration"
	Diplomatic  Category = "diplomatic"
	Technology  Category = "technology"
)

// Categories lists every category in a stable order.
var Categories = []Category{Military, Defensive, Economic, Expansion, Trade, Exploration, Diplomatic, Technology}

// keywordTable is checked in order; the first category with a matching
// keyword wins. Economic is last because "build" and "gather" are generic.
var keywordTable = []struct {
	cat      Category
	keywords []string
}{
	{Defensive, []string{"defen", "fortif", "wall", "tower", "guard", "retreat", "withdraw", "shield", "garrison", "bunker"}},
	{Military, []string{"attack", "military", "army", "troop", "soldier", "raid", "siege", "warfare", "declare_war", "weapon", "assault", "invade", "combat"}},
	{Expansion, []string{"expan", "settle", "claim", "coloniz", "territor", "outpost"}},
	{Trade, []string{"trade", "market", "sell", "buy", "barter", "exchange", "caravan"}},
	{Exploration, []string{"explor", "scout", "survey", "discover", "map"}},
	{Diplomatic, []string{"diploma", "ally", "alliance", "treaty", "peace", "negotiat", "envoy"}},
	{Technology, []string{"research", "tech", "upgrade", "science", "study", "invent"}},
	{Economic, []string{"gather", "harvest", "mine", "farm", "build", "collect", "resource", "econom", "produce", "craft", "hoard", "stockpile"}},
}

// Classify maps an action type onto a category by keyword. Types matching
// nothing count as economic activity.
func Classify(actionType string) Category {
	t := strings.ToLower(actionType)
	for _, row := range keywordTable {
		for _, kw := range row.keywords {
			if strings.Contains(t, kw) {
				return row.cat
			}
		}
	}
	return Economic
}

func isAttack(actionType string) bool {
	t := strings.ToLower(actionType)
	for _, kw := range []string{"attack", "raid", "assault", "siege", "invade", "strike"} {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

func isWithdrawal(actionType string, cat Category) bool {
	if cat == Defensive {
		return true
	}
	t := strings.ToLower(actionType)
	return strings.Contains(t, "retreat") || strings.Contains(t, "withdraw") || strings.Contains(t, "fall_back")
}
