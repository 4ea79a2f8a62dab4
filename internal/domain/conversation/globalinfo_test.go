package conversation

import "testing"

func TestDecodeGlobalInfoLenient(t *testing.T) {
	g := DecodeGlobalInfo([]byte(`{
		"activeFileDetails": {"existsActive": "", "activeChatIndex": "7", "activeJsonFilePath": "/x/conversation7.json"},
		"convoName": "Trip plans",
		"convoIndex": "bogus",
		"carbonFootprint": 0.25
	}`))

	if g.ActiveFileDetails.ExistsActive {
		t.Fatal(`"" must decode as false`)
	}
	if g.ActiveFileDetails.ActiveChatIndex != 7 {
		t.Fatalf("expected numeric string index 7, got %d", g.ActiveFileDetails.ActiveChatIndex)
	}
	if g.ConvoIndex != 0 {
		t.Fatalf("expected unusable convoIndex to be 0, got %d", g.ConvoIndex)
	}
	if g.CarbonFootprint != 0.25 {
		t.Fatalf("expected carbon 0.25, got %v", g.CarbonFootprint)
	}
	if g.PermanentMemories == nil {
		t.Fatal("memories must default to an empty list")
	}
	if g.ActiveID() != "" {
		t.Fatal("inactive pointer must not report an id")
	}
}

func TestDecodeGlobalInfoGarbage(t *testing.T) {
	g := DecodeGlobalInfo([]byte("not json"))
	if g.ActiveID() != "" || g.ConvoIndex != 0 {
		t.Fatalf("expected zero value, got %+v", g)
	}
}

func TestGlobalInfoSetActive(t *testing.T) {
	g := GlobalInfo{ConvoIndex: 9}
	g.SetActive("conversation4", "/data/conversation4.json", "NONE")

	if g.ActiveID() != "conversation4" {
		t.Fatalf("unexpected active id %q", g.ActiveID())
	}
	if g.ConvoName != "Conversation 4" {
		t.Fatalf("expected default title, got %q", g.ConvoName)
	}
	if g.ActiveFileDetails.ActiveChatIndex != 4 || g.ConvoIndex != 9 {
		t.Fatalf("unexpected indexes %+v / %d", g.ActiveFileDetails, g.ConvoIndex)
	}
}

func TestGlobalInfoAddCarbon(t *testing.T) {
	var g GlobalInfo
	g.AddCarbon(0.5)
	g.AddCarbon(-1)
	g.AddCarbon(0.25)
	if g.CarbonFootprint != 0.75 {
		t.Fatalf("expected 0.75, got %v", g.CarbonFootprint)
	}
}
