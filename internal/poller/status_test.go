package poller

import "testing"

func TestParseStatusResponse(t *testing.T) {
	payload := "\xff\xff\xff\xffstatusResponse\n" +
		"\\sv_hostname\\^1Frag ^7Factory\\mapname\\q3dm17\\g_gametype\\0\n" +
		"15 48 \"^4Night^7Owl\"\n" +
		"3 0 \"Sarge\"\n" +
		"garbage line without a name\n" +
		"7 120 \"lag wizard\"\n"

	status, err := parseStatusResponse("example.com:27960", []byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if status.Name != "Frag Factory" {
		t.Errorf("name = %q, want Frag Factory", status.Name)
	}
	if status.Map != "q3dm17" {
		t.Errorf("map = %q, want q3dm17", status.Map)
	}
	if len(status.Players) != 3 {
		t.Fatalf("players = %+v, want 3 entries", status.Players)
	}

	first := status.Players[0]
	if first.Name != "NightOwl" || first.Score != 15 || first.Ping != 48 {
		t.Errorf("first player = %+v", first)
	}
	if status.Players[2].Ping != 120 {
		t.Errorf("third player = %+v", status.Players[2])
	}
}

func TestParseStatusResponseRejectsBadPrefix(t *testing.T) {
	if _, err := parseStatusResponse("x", []byte("hello")); err == nil {
		t.Error("expected an error for a non-status payload")
	}
	if _, err := parseStatusResponse("x", []byte("\xff\xff\xff\xffgetstatus\n")); err == nil {
		t.Error("expected an error for the wrong response type")
	}
}

func TestParsePlayerLine(t *testing.T) {
	player, err := parsePlayerLine(`22 35 "^2UnnamedPlayer"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if player.Name != "UnnamedPlayer" || player.Score != 22 || player.Ping != 35 {
		t.Errorf("player = %+v", player)
	}

	// The outermost quotes delimit the name; inner quotes are kept
	player, err = parsePlayerLine(`-3 10 "say "hi""`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if player.Name != `say "hi"` {
		t.Errorf("name = %q, want say \"hi\"", player.Name)
	}
	if player.Score != -3 || player.Ping != 10 {
		t.Errorf("player = %+v", player)
	}

	if _, err := parsePlayerLine("no quotes here"); err == nil {
		t.Error("expected an error without a quoted name")
	}
}

func TestCleanName(t *testing.T) {
	cases := map[string]string{
		"^1Red^7White":    "RedWhite",
		"plain":           "plain",
		"  padded  ":      "padded",
		"^^77trailing ^":  "77trailing",
		"^1^2^3":          "",
		"mixed^zchars ok": "mixedchars ok",
	}
	for in, want := range cases {
		if got := CleanName(in); got != want {
			t.Errorf("CleanName(%q) = %q, want %q", in, got, want)
		}
	}
}
