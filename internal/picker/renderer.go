package picker

// Renderer projects picker session state onto the target page. The
// production implementation evaluates JavaScript inside the page; tests
// use RecordingRenderer. Renderer calls are fire-and-forget: drawing
// failures must never stall the state machine, so implementations log
// and swallow their own errors.
type Renderer interface {
	// SetMode reconfigures the overlay's listeners for a mode switch.
	SetMode(s State)

	// Highlight draws the hover bounding box around an element.
	Highlight(el ElementInfo)
	// ClearHighlight removes the hover box.
	ClearHighlight()

	// AddBadge places a numbered badge at the element's bounding box.
	AddBadge(el ElementInfo, n int)
	// RemoveBadge removes the badge for an element.
	RemoveBadge(token string)
	// RenumberBadge updates the number shown on an existing badge.
	RenumberBadge(token string, n int)

	// DrawRect draws the crop rectangle.
	DrawRect(r Rect)
	// ClearRect removes the crop rectangle.
	ClearRect()

	// MarkField outlines a chosen credential field.
	MarkField(el ElementInfo)

	// Prompt shows a transient message in the overlay toolbar.
	Prompt(msg string)

	// Teardown removes every injected node and listener.
	Teardown()
}

// NullRenderer is a Renderer that draws nothing.
type NullRenderer struct{}

func (NullRenderer) SetMode(State)               {}
func (NullRenderer) Highlight(ElementInfo)       {}
func (NullRenderer) ClearHighlight()             {}
func (NullRenderer) AddBadge(ElementInfo, int)   {}
func (NullRenderer) RemoveBadge(string)          {}
func (NullRenderer) RenumberBadge(string, int)   {}
func (NullRenderer) DrawRect(Rect)               {}
func (NullRenderer) ClearRect()                  {}
func (NullRenderer) MarkField(ElementInfo)       {}
func (NullRenderer) Prompt(string)               {}
func (NullRenderer) Teardown()                   {}

// RendererOp records one renderer call for test assertions.
type RendererOp struct {
	Op    string
	Token string
	N     int
	Rect  Rect
	Msg   string
}

// RecordingRenderer captures the projection stream so tests can assert
// on what would have been drawn.
type RecordingRenderer struct {
	Ops []RendererOp
}

func (r *RecordingRenderer) record(op RendererOp) { r.Ops = append(r.Ops, op) }

func (r *RecordingRenderer) SetMode(s State) { r.record(RendererOp{Op: "mode", Msg: s.String()}) }
func (r *RecordingRenderer) Highlight(el ElementInfo) {
	r.record(RendererOp{Op: "highlight", Token: el.Token})
}
func (r *RecordingRenderer) ClearHighlight() { r.record(RendererOp{Op: "clear_highlight"}) }
func (r *RecordingRenderer) AddBadge(el ElementInfo, n int) {
	r.record(RendererOp{Op: "add_badge", Token: el.Token, N: n})
}
func (r *RecordingRenderer) RemoveBadge(token string) {
	r.record(RendererOp{Op: "remove_badge", Token: token})
}
func (r *RecordingRenderer) RenumberBadge(token string, n int) {
	r.record(RendererOp{Op: "renumber_badge", Token: token, N: n})
}
func (r *RecordingRenderer) DrawRect(rect Rect) { r.record(RendererOp{Op: "draw_rect", Rect: rect}) }
func (r *RecordingRenderer) ClearRect()         { r.record(RendererOp{Op: "clear_rect"}) }
func (r *RecordingRenderer) MarkField(el ElementInfo) {
	r.record(RendererOp{Op: "mark_field", Token: el.Token})
}
func (r *RecordingRenderer) Prompt(msg string) { r.record(RendererOp{Op: "prompt", Msg: msg}) }
func (r *RecordingRenderer) Teardown()         { r.record(RendererOp{Op: "teardown"}) }

// Badges returns the tokens that currently have a badge, with their
// numbers, replayed from the op stream.
func (r *RecordingRenderer) Badges() map[string]int {
	badges := make(map[string]int)
	for _, op := range r.Ops {
		switch op.Op {
		case "add_badge", "renumber_badge":
			badges[op.Token] = op.N
		case "remove_badge":
			delete(badges, op.Token)
		}
	}
	return badges
}
