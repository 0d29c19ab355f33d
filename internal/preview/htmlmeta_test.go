package preview

import "testing"

func TestParseMeta(t *testing.T) {
	body := []byte(`<!doctype html><html><head>
<title> Page Title </title>
<meta property="og:title" content="OG Title">
<meta property="OG:DESCRIPTION" content="desc">
<meta name="description" content="plain desc">
<meta property="og:title" content="duplicate loses">
<link rel="shortcut icon" href="/fav.png">
</head><body><p>hi</p></body></html>`)

	meta, err := ParseMeta(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if meta.Title != "Page Title" {
		t.Errorf("title = %q", meta.Title)
	}
	if got := meta.Get("og:title"); got != "OG Title" {
		t.Errorf("og:title = %q, first occurrence should win", got)
	}
	if got := meta.Get("og:description"); got != "desc" {
		t.Errorf("og:description = %q, keys should be case-insensitive", got)
	}
	if got := meta.Get("missing", "description"); got != "plain desc" {
		t.Errorf("fallback chain = %q", got)
	}
	if meta.IconHref != "/fav.png" {
		t.Errorf("icon = %q", meta.IconHref)
	}
}

func TestParseMetaMalformed(t *testing.T) {
	meta, err := ParseMeta([]byte(`<html><head><title>Broken`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if meta.Title != "Broken" {
		t.Errorf("title = %q", meta.Title)
	}
}
