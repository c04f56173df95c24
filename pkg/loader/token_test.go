package loader

import (
	"context"
	"image/color"
	"testing"
)

var defaultTestColour = color.RGBA{R: 127, G: 127, B: 127, A: 255}

func TestToken(t *testing.T) {
	tok := NewToken(context.Background())
	if !tok.Active() {
		t.Fatal("new token should be active")
	}
	if len(tok.ID) != 36 {
		t.Errorf("ID = %q, want a UUID", tok.ID)
	}
	if got := tok.String(); len(got) != 8 {
		t.Errorf("String() = %q, want 8 characters", got)
	}

	tok.Cancel()
	tok.Cancel()
	if tok.Active() {
		t.Error("cancelled token should be inactive")
	}
	if tok.Context().Err() == nil {
		t.Error("context should be cancelled with the token")
	}
}

func TestTokenParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	tok := NewToken(parent)
	cancel()
	if tok.Active() {
		t.Error("token should follow its parent context")
	}
}

func TestTokenNil(t *testing.T) {
	var tok *Token
	if tok.Active() {
		t.Error("nil token should be inactive")
	}
	tok.Cancel()
	if tok.String() != "<nil>" {
		t.Errorf("String() = %q", tok.String())
	}
}

func TestTokensAreDistinct(t *testing.T) {
	a, b := NewToken(context.Background()), NewToken(context.Background())
	if a.ID == b.ID {
		t.Error("tokens share an ID")
	}
	a.Cancel()
	if !b.Active() {
		t.Error("cancelling one token affected another")
	}
}
