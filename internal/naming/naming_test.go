package naming

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTopicFolder(t *testing.T) {
	cases := map[string]string{
		"machine_learning": "Machine Learning",
		"ai_&_ml":          "AI & ML",
		"web api":          "Web API",
	}
	for in, want := range cases {
		if got := TopicFolder(in); got != want {
			t.Errorf("TopicFolder(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTopicFolder_LowercaseWords(t *testing.T) {
	got := TopicFolder("art of the deal")
	want := "Art of the Deal"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBookFolder(t *testing.T) {
	got := BookFolder(`Learning Go: A <Guide>`, "12345")
	if got != `Learning Go_ A _Guide_ (12345)` {
		t.Errorf("unexpected book folder: %q", got)
	}
}

func TestEpubFilename(t *testing.T) {
	standard := EpubFilename("Learning Go", "Jon Bodner", ProfileStandard)
	if standard != "Learning Go - Jon Bodner.epub" {
		t.Errorf("unexpected standard filename: %q", standard)
	}
	kindle := EpubFilename("Learning Go", "Jon Bodner", ProfileKindle)
	if kindle != "Learning Go - Jon Bodner (Kindle).epub" {
		t.Errorf("unexpected kindle filename: %q", kindle)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	title, author := "Learning Go", "Jon Bodner"

	if Exists(dir, title, author, "dual") {
		t.Error("expected no files to exist yet")
	}

	standardPath := filepath.Join(dir, EpubFilename(title, author, ProfileStandard))
	if err := os.WriteFile(standardPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if Exists(dir, title, author, "dual") {
		t.Error("dual profile should require both files")
	}
	if !Exists(dir, title, author, "legacy") {
		t.Error("legacy profile should be satisfied by the standard file alone")
	}

	kindlePath := filepath.Join(dir, EpubFilename(title, author, ProfileKindle))
	if err := os.WriteFile(kindlePath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !Exists(dir, title, author, "dual") {
		t.Error("dual profile should be satisfied once both files exist")
	}
}

func TestAnyEpubExists(t *testing.T) {
	dir := t.TempDir()
	if AnyEpubExists(dir, "dual") {
		t.Error("expected no files to exist yet")
	}

	if err := os.WriteFile(filepath.Join(dir, "Learning Go - Someone Else.epub"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if AnyEpubExists(dir, "dual") {
		t.Error("dual profile should still require the kindle file")
	}
	if !AnyEpubExists(dir, "legacy") {
		t.Error("any standard epub file should satisfy the legacy profile regardless of author")
	}

	if err := os.WriteFile(filepath.Join(dir, "Learning Go - Someone Else (Kindle).epub"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !AnyEpubExists(dir, "dual") {
		t.Error("dual profile should be satisfied once both files exist, regardless of author")
	}
}
