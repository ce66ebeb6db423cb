package smartrouter

import "testing"

func TestMatchTierOne_SampleTop(t *testing.T) {
	template, params, ok := matchTierOne("show me the top 25 requests by latency")
	if !ok {
		t.Fatalf("expected a match")
	}
	if template != TemplateSampleTop {
		t.Fatalf("expected %s, got %s", TemplateSampleTop, template)
	}
	if params["n"] != 25 {
		t.Fatalf("expected n=25, got %v", params["n"])
	}
}

func TestMatchTierOne_SampleTopClampsN(t *testing.T) {
	template, params, ok := matchTierOne("top 5000 activities")
	if !ok {
		t.Fatalf("expected a match")
	}
	if template != TemplateSampleTop {
		t.Fatalf("expected %s, got %s", TemplateSampleTop, template)
	}
	if params["n"] != maxN {
		t.Fatalf("expected n clamped to %d, got %v", maxN, params["n"])
	}
}

func TestMatchTierOne_RecentNClampsHours(t *testing.T) {
	template, params, ok := matchTierOne("recent 400 hours of activity")
	if !ok {
		t.Fatalf("expected a match")
	}
	if template != TemplateRecentN {
		t.Fatalf("expected %s, got %s", TemplateRecentN, template)
	}
	if params["hours"] != maxHours {
		t.Fatalf("expected hours clamped to %d, got %v", maxHours, params["hours"])
	}
}

func TestMatchTierOne_BreakdownByType(t *testing.T) {
	template, params, ok := matchTierOne("give me a breakdown by status")
	if !ok {
		t.Fatalf("expected a match")
	}
	if template != TemplateBreakdownByType {
		t.Fatalf("expected %s, got %s", TemplateBreakdownByType, template)
	}
	if params["dimension"] != "STATUS" {
		t.Fatalf("expected dimension STATUS, got %v", params["dimension"])
	}
}

func TestMatchTierOne_NoMatchFallsThrough(t *testing.T) {
	_, _, ok := matchTierOne("why did latency spike across every region yesterday")
	if ok {
		t.Fatalf("expected no Tier-1 match")
	}
}

func TestClassifyTier2Or3_Tier3CuesWinOverTier2(t *testing.T) {
	tier := classifyTier2Or3("compare this week to last week in an executive summary of findings")
	if tier != Tier3 {
		t.Fatalf("expected Tier3, got %s", tier)
	}
}

func TestClassifyTier2Or3_Tier2Cues(t *testing.T) {
	tier := classifyTier2Or3("compare latency trend filtered by region")
	if tier != Tier2 {
		t.Fatalf("expected Tier2, got %s", tier)
	}
}

func TestClassifyTier2Or3_DefaultsToTier3(t *testing.T) {
	tier := classifyTier2Or3("what happened")
	if tier != Tier3 {
		t.Fatalf("expected Tier3 default, got %s", tier)
	}
}
