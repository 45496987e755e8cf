package usecase

import (
	"unicode"
	"unicode/utf8"

	"chatline/internal/entity"
)

// excerptContext is the number of bytes of context kept on each side of
// the first search match.
const excerptContext = 40

// shapeMessage projects a message for one viewer. All visibility rules
// live here: ownership flagging and anonymous-poll vote hiding happen in
// this one pure function rather than ad hoc in mapping code.
func shapeMessage(m entity.Message, viewerId string) entity.MessageView {
	view := entity.MessageView{
		Id:                  m.Id,
		ChatId:              m.ChatId,
		SenderId:            m.SenderId,
		Content:             m.Content,
		IsDeleted:           m.IsDeleted,
		IsOwn:               viewerId != "" && m.SenderId == viewerId,
		CreatedAt:           m.CreatedAt,
		EditedAt:            m.EditedAt,
		IsVoiceMessage:      m.IsVoiceMessage,
		TranscriptionStatus: m.TranscriptionStatus,
		ReplyToId:           m.ReplyToId,
		ForwardedFromId:     m.ForwardedFromId,
		Attachments:         m.Attachments,
	}

	if m.Poll != nil {
		view.Poll = shapePoll(m.Poll, viewerId)
	}

	return view
}

func shapePoll(p *entity.Poll, viewerId string) *entity.PollView {
	options := make([]entity.PollOptionView, 0, len(p.Options))
	for _, option := range p.Options {
		voted := false
		for _, voter := range option.VoterIds {
			if viewerId != "" && voter == viewerId {
				voted = true
				break
			}
		}

		shaped := entity.PollOptionView{
			Text:      option.Text,
			VoteCount: len(option.VoterIds),
			Voted:     voted,
		}
		// Anonymous polls expose counts and the viewer's own vote, never
		// the voter list.
		if !p.IsAnonymous {
			shaped.VoterIds = append([]string(nil), option.VoterIds...)
		}
		options = append(options, shaped)
	}

	return &entity.PollView{
		Question:    p.Question,
		IsAnonymous: p.IsAnonymous,
		Options:     options,
	}
}

func shapeMessages(messages []entity.Message, viewerId string) []entity.MessageView {
	views := make([]entity.MessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, shapeMessage(m, viewerId))
	}
	return views
}

// foldPrefixLen reports whether s starts with a case-insensitive match
// of query, and if so how many bytes of s the match covers. Working in
// s's own bytes keeps offsets valid even when folding changes rune
// widths.
func foldPrefixLen(s, query string) (int, bool) {
	n := 0
	for len(query) > 0 {
		if len(s) == n {
			return 0, false
		}
		sr, sw := utf8.DecodeRuneInString(s[n:])
		qr, qw := utf8.DecodeRuneInString(query)
		if unicode.ToLower(sr) != unicode.ToLower(qr) {
			return 0, false
		}
		n += sw
		query = query[qw:]
	}
	return n, true
}

// foldIndex finds the first case-insensitive occurrence of query in
// content, returning the byte offset and match length in content.
func foldIndex(content, query string) (int, int) {
	if query == "" {
		return -1, 0
	}
	for i := 0; i < len(content); {
		if n, ok := foldPrefixLen(content[i:], query); ok {
			return i, n
		}
		_, w := utf8.DecodeRuneInString(content[i:])
		i += w
	}
	return -1, 0
}

// highlightExcerpt cuts a window of context around the first
// case-insensitive occurrence of query, marking truncation with
// ellipses.
func highlightExcerpt(content, query string) string {
	idx, matchLen := foldIndex(content, query)
	if idx < 0 {
		return content
	}

	start := idx - excerptContext
	if start < 0 {
		start = 0
	}
	end := idx + matchLen + excerptContext
	if end > len(content) {
		end = len(content)
	}

	// Snap to rune boundaries so multi-byte characters are never split.
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}

	excerpt := content[start:end]
	if start > 0 {
		excerpt = "…" + excerpt
	}
	if end < len(content) {
		excerpt = excerpt + "…"
	}

	return excerpt
}
