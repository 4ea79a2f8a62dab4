package conversation

import (
	"encoding/json"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// ActiveFileDetails points at the active conversation file.
type ActiveFileDetails struct {
	ExistsActive       bool   `json:"existsActive"`
	ActiveChatIndex    int    `json:"activeChatIndex"`
	ActiveJSONFilePath string `json:"activeJsonFilePath"`
}

// GlobalInfo is the process-wide pointer record.
type GlobalInfo struct {
	ActiveFileDetails ActiveFileDetails `json:"activeFileDetails"`
	ConvoName         string            `json:"convoName"`
	ConvoIndex        int               `json:"convoIndex"`
	CarbonFootprint   float64           `json:"carbonFootprint"`
	PermanentMemories []json.RawMessage `json:"permanent memories"`
}

// DecodeGlobalInfo parses data leniently. Older writers stored "" for unset
// booleans and indexes and numeric strings for indexes; anything unusable
// falls back to its zero value.
func DecodeGlobalInfo(data []byte) GlobalInfo {
	g := GlobalInfo{PermanentMemories: []json.RawMessage{}}

	var raw map[string]json.RawMessage
	if json.Unmarshal(data, &raw) != nil {
		return g
	}

	var details map[string]json.RawMessage
	if json.Unmarshal(raw["activeFileDetails"], &details) == nil {
		_ = json.Unmarshal(details["existsActive"], &g.ActiveFileDetails.ExistsActive)
		g.ActiveFileDetails.ActiveChatIndex = lenientInt(details["activeChatIndex"])
		_ = json.Unmarshal(details["activeJsonFilePath"], &g.ActiveFileDetails.ActiveJSONFilePath)
	}
	_ = json.Unmarshal(raw["convoName"], &g.ConvoName)
	g.ConvoIndex = max(lenientInt(raw["convoIndex"]), 0)

	var carbon float64
	if json.Unmarshal(raw["carbonFootprint"], &carbon) == nil && !math.IsNaN(carbon) && !math.IsInf(carbon, 0) {
		g.CarbonFootprint = carbon
	}
	var memories []json.RawMessage
	if json.Unmarshal(raw["permanent memories"], &memories) == nil && memories != nil {
		g.PermanentMemories = memories
	}
	return g
}

func lenientInt(raw json.RawMessage) int {
	var n int
	if json.Unmarshal(raw, &n) == nil {
		return n
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return v
		}
	}
	return 0
}

// ActiveID returns the conversation id the pointer refers to, or "".
func (g GlobalInfo) ActiveID() string {
	if !g.ActiveFileDetails.ExistsActive || g.ActiveFileDetails.ActiveJSONFilePath == "" {
		return ""
	}
	base := filepath.Base(g.ActiveFileDetails.ActiveJSONFilePath)
	return SanitizeID(strings.TrimSuffix(base, filepath.Ext(base)))
}

// SetActive points the record at the conversation stored at path.
func (g *GlobalInfo) SetActive(id, path, name string) {
	g.ActiveFileDetails.ExistsActive = true
	g.ActiveFileDetails.ActiveJSONFilePath = path
	g.ConvoName = NormalizeTitle(name, id)
	if n, ok := IDNumber(id); ok {
		g.ActiveFileDetails.ActiveChatIndex = n
		g.ConvoIndex = max(g.ConvoIndex, n)
	}
}

// AddCarbon accumulates a turn's footprint. Non-positive or non-finite
// values are ignored.
func (g *GlobalInfo) AddCarbon(kg float64) {
	if kg > 0 && !math.IsInf(kg, 0) {
		g.CarbonFootprint += kg
	}
}
