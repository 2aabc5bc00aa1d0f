package session

// View names a top-level screen.
type View string

const (
	ViewLogin  View = "login"
	ViewSignup View = "signup"
	ViewMain   View = "main"
)

// IsAuthView reports whether v is reachable without an identity.
func (v View) IsAuthView() bool {
	return v == ViewLogin || v == ViewSignup
}

// Route applies the routing rule: signed-in users leave the auth views for
// main, signed-out users anywhere else go to login, and nothing moves while
// the identity is resolving.
func Route(view View, resolving, authenticated bool) (View, bool) {
	if resolving {
		return "", false
	}
	switch {
	case authenticated && view.IsAuthView():
		return ViewMain, true
	case !authenticated && !view.IsAuthView():
		return ViewLogin, true
	}
	return "", false
}
