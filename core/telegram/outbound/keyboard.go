package outbound

// Keyboard describes interactive markup independently of the platform SDK.
// Implementations: ReplyKeyboard, InlineKeyboard, RemoveKeyboard.
type Keyboard interface {
	keyboard()
}

// ReplyButton is a button of the persistent reply keyboard.
type ReplyButton struct {
	Text string
	// RequestContact asks the client to share the user's phone contact.
	RequestContact bool
}

// ReplyKeyboard replaces the user's input keyboard.
type ReplyKeyboard struct {
	Rows    [][]ReplyButton
	OneTime bool
}

// InlineButton is a button attached to a message. Unique and Data are joined as "unique|data".
type InlineButton struct {
	Text   string
	Unique string
	Data   string
}

// InlineKeyboard is attached to one message.
type InlineKeyboard struct {
	Rows [][]InlineButton
}

// RemoveKeyboard hides the reply keyboard.
type RemoveKeyboard struct{}

func (ReplyKeyboard) keyboard()  {}
func (InlineKeyboard) keyboard() {}
func (RemoveKeyboard) keyboard() {}

// ReplyButtons builds a reply keyboard from rows of labels.
func ReplyButtons(rows ...[]string) ReplyKeyboard {
	kb := ReplyKeyboard{Rows: make([][]ReplyButton, 0, len(rows))}
	for _, row := range rows {
		r := make([]ReplyButton, 0, len(row))
		for _, label := range row {
			r = append(r, ReplyButton{Text: label})
		}
		kb.Rows = append(kb.Rows, r)
	}
	return kb
}

// ContactRequest builds a one-button keyboard that shares the phone contact.
func ContactRequest(label string) ReplyKeyboard {
	return ReplyKeyboard{Rows: [][]ReplyButton{{{Text: label, RequestContact: true}}}, OneTime: true}
}

// InlineRow builds an inline keyboard where all buttons share a single row.
func InlineRow(buttons ...InlineButton) InlineKeyboard {
	return InlineKeyboard{Rows: [][]InlineButton{buttons}}
}
