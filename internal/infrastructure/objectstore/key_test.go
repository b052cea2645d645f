package objectstore_test

import (
	"context"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"mailagent/internal/infrastructure/objectstore"
)

func TestObjectKeyLayout(t *testing.T) {
	key := objectstore.ObjectKey("conv-1", "report.pdf")

	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		t.Fatalf("key = %q, want conversations/<id>/<object>", key)
	}
	if parts[0] != "conversations" || parts[1] != "conv-1" {
		t.Errorf("key prefix = %q", key)
	}

	idPart, namePart, ok := strings.Cut(parts[2], "-")
	if !ok {
		t.Fatalf("object segment = %q, want <ulid>-<filename>", parts[2])
	}
	if _, err := ulid.Parse(idPart); err != nil {
		t.Errorf("object id %q is not a ULID: %v", idPart, err)
	}
	if namePart != "report.pdf" {
		t.Errorf("filename = %q, want report.pdf", namePart)
	}
}

func TestObjectKeysAreUnique(t *testing.T) {
	a := objectstore.ObjectKey("conv-1", "report.pdf")
	b := objectstore.ObjectKey("conv-1", "report.pdf")
	if a == b {
		t.Errorf("repeated uploads of the same filename must not collide: %q", a)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"My Notes (final).txt", "My_Notes__final_.txt"},
		{"../../etc/passwd", "passwd"},
		{"", "attachment"},
		{"  ", "attachment"},
		{"données.csv", "donn_es.csv"},
	}

	for _, tt := range tests {
		if got := objectstore.SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDisabledStoreRejectsUploads(t *testing.T) {
	store, err := objectstore.NewS3Store(context.Background(), objectstore.Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewS3Store: %v", err)
	}

	if store.Enabled() {
		t.Error("store without bucket should be disabled")
	}
	if _, err := store.Upload(context.Background(), "conv-1", "a.txt", "text/plain", []byte("x")); err == nil {
		t.Error("upload on disabled store should fail")
	}
	if err := store.Health(context.Background()); err != nil {
		t.Errorf("disabled store health = %v, want nil", err)
	}
}
