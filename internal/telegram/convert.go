package telegram

import (
	"github.com/gotd/td/tg"

	"github.com/lueurxax/telegram-channel-relay/internal/core/domain"
)

// mediaRef is the transport handle stored in domain.Media.Ref.
// Exactly one field is set.
type mediaRef struct {
	photo    *tg.Photo
	document *tg.Document
}

// chatIDOf returns the marked chat id of a peer.
func chatIDOf(peer tg.PeerClass) (int64, bool) {
	switch p := peer.(type) {
	case *tg.PeerChannel:
		return domain.ChannelChatID(p.ChannelID), true
	case *tg.PeerChat:
		return -p.ChatID, true
	case *tg.PeerUser:
		return p.UserID, true
	default:
		return 0, false
	}
}

// convertMessage maps a raw message to the domain model.
// ok is false for messages without an addressable peer.
func convertMessage(msg *tg.Message, edited bool) (domain.Message, bool) {
	chatID, ok := chatIDOf(msg.PeerID)
	if !ok {
		return domain.Message{}, false
	}

	out := domain.Message{
		ID:       msg.ID,
		ChatID:   chatID,
		Text:     msg.Message,
		Entities: convertEntities(msg.Entities),
		Media:    convertMedia(msg.Media),
		Buttons:  convertButtons(msg.ReplyMarkup),
		Edited:   edited,
	}

	if groupedID, ok := msg.GetGroupedID(); ok {
		out.GroupedID = groupedID
	}

	return out, true
}

func convertEntities(in []tg.MessageEntityClass) []domain.Span {
	if len(in) == 0 {
		return nil
	}

	out := make([]domain.Span, 0, len(in))

	for _, ent := range in {
		span := domain.Span{Offset: ent.GetOffset(), Length: ent.GetLength()}

		switch e := ent.(type) {
		case *tg.MessageEntityBold:
			span.Kind = domain.SpanBold
		case *tg.MessageEntityItalic:
			span.Kind = domain.SpanItalic
		case *tg.MessageEntityUnderline:
			span.Kind = domain.SpanUnderline
		case *tg.MessageEntityStrike:
			span.Kind = domain.SpanStrike
		case *tg.MessageEntityCode:
			span.Kind = domain.SpanCode
		case *tg.MessageEntityPre:
			span.Kind = domain.SpanPre
			span.Language = e.Language
		case *tg.MessageEntitySpoiler:
			span.Kind = domain.SpanSpoiler
		case *tg.MessageEntityBlockquote:
			span.Kind = domain.SpanBlockquote
		case *tg.MessageEntityURL:
			span.Kind = domain.SpanURL
		case *tg.MessageEntityTextURL:
			span.Kind = domain.SpanTextURL
			span.URL = e.URL
		case *tg.MessageEntityEmail:
			span.Kind = domain.SpanEmail
		case *tg.MessageEntityMention:
			span.Kind = domain.SpanMention
		case *tg.MessageEntityMentionName:
			span.Kind = domain.SpanMentionName
			span.UserID = e.UserID
		case *tg.MessageEntityHashtag:
			span.Kind = domain.SpanHashtag
		case *tg.MessageEntityCashtag:
			span.Kind = domain.SpanCashtag
		case *tg.MessageEntityBotCommand:
			span.Kind = domain.SpanBotCommand
		case *tg.MessageEntityPhone:
			span.Kind = domain.SpanPhone
		case *tg.MessageEntityBankCard:
			span.Kind = domain.SpanBankCard
		case *tg.MessageEntityCustomEmoji:
			span.Kind = domain.SpanCustomEmoji
			span.DocumentID = e.DocumentID
		default:
			continue
		}

		out = append(out, span)
	}

	return out
}

// toTGEntities maps spans back to wire entities. Empty spans and user
// mentions (which need the user's access hash) are dropped.
func toTGEntities(spans []domain.Span) []tg.MessageEntityClass {
	if len(spans) == 0 {
		return nil
	}

	out := make([]tg.MessageEntityClass, 0, len(spans))

	for _, s := range spans {
		if s.Length <= 0 {
			continue
		}

		if ent := toTGEntity(s); ent != nil {
			out = append(out, ent)
		}
	}

	return out
}

//nolint:cyclop // one case per entity kind
func toTGEntity(s domain.Span) tg.MessageEntityClass {
	off, n := s.Offset, s.Length

	switch s.Kind {
	case domain.SpanBold:
		return &tg.MessageEntityBold{Offset: off, Length: n}
	case domain.SpanItalic:
		return &tg.MessageEntityItalic{Offset: off, Length: n}
	case domain.SpanUnderline:
		return &tg.MessageEntityUnderline{Offset: off, Length: n}
	case domain.SpanStrike:
		return &tg.MessageEntityStrike{Offset: off, Length: n}
	case domain.SpanCode:
		return &tg.MessageEntityCode{Offset: off, Length: n}
	case domain.SpanPre:
		return &tg.MessageEntityPre{Offset: off, Length: n, Language: s.Language}
	case domain.SpanSpoiler:
		return &tg.MessageEntitySpoiler{Offset: off, Length: n}
	case domain.SpanBlockquote:
		return &tg.MessageEntityBlockquote{Offset: off, Length: n}
	case domain.SpanURL:
		return &tg.MessageEntityURL{Offset: off, Length: n}
	case domain.SpanTextURL:
		return &tg.MessageEntityTextURL{Offset: off, Length: n, URL: s.URL}
	case domain.SpanEmail:
		return &tg.MessageEntityEmail{Offset: off, Length: n}
	case domain.SpanMention:
		return &tg.MessageEntityMention{Offset: off, Length: n}
	case domain.SpanHashtag:
		return &tg.MessageEntityHashtag{Offset: off, Length: n}
	case domain.SpanCashtag:
		return &tg.MessageEntityCashtag{Offset: off, Length: n}
	case domain.SpanBotCommand:
		return &tg.MessageEntityBotCommand{Offset: off, Length: n}
	case domain.SpanPhone:
		return &tg.MessageEntityPhone{Offset: off, Length: n}
	case domain.SpanBankCard:
		return &tg.MessageEntityBankCard{Offset: off, Length: n}
	case domain.SpanCustomEmoji:
		return &tg.MessageEntityCustomEmoji{Offset: off, Length: n, DocumentID: s.DocumentID}
	default:
		return nil
	}
}

// convertMedia classifies attached media once. Only photos and documents
// are supported; previews keep their URL for the whitelist.
func convertMedia(media tg.MessageMediaClass) domain.Media {
	switch m := media.(type) {
	case nil:
		return domain.Media{}
	case *tg.MessageMediaEmpty:
		return domain.Media{}
	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.(*tg.Photo)
		if !ok {
			return domain.Media{Kind: domain.MediaUnsupported}
		}

		return domain.Media{Kind: domain.MediaPhoto, MimeType: "image/jpeg", Ref: mediaRef{photo: photo}}
	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok {
			return domain.Media{Kind: domain.MediaUnsupported}
		}

		return domain.Media{
			Kind:     domain.MediaDocument,
			MimeType: doc.MimeType,
			FileName: documentFileName(doc),
			Ref:      mediaRef{document: doc},
		}
	case *tg.MessageMediaWebPage:
		out := domain.Media{Kind: domain.MediaUnsupported}
		if page, ok := m.Webpage.(*tg.WebPage); ok {
			out.PreviewURL = page.URL
		}

		return out
	default:
		return domain.Media{Kind: domain.MediaUnsupported}
	}
}

func documentFileName(doc *tg.Document) string {
	for _, attr := range doc.Attributes {
		if a, ok := attr.(*tg.DocumentAttributeFilename); ok {
			return a.FileName
		}
	}

	return ""
}

func convertButtons(markup tg.ReplyMarkupClass) [][]domain.Button {
	inline, ok := markup.(*tg.ReplyInlineMarkup)
	if !ok || len(inline.Rows) == 0 {
		return nil
	}

	rows := make([][]domain.Button, 0, len(inline.Rows))

	for _, row := range inline.Rows {
		var out []domain.Button

		for _, btn := range row.Buttons {
			if u, ok := btn.(*tg.KeyboardButtonURL); ok {
				out = append(out, domain.Button{Text: u.Text, URL: u.URL})
			}
		}

		if len(out) > 0 {
			rows = append(rows, out)
		}
	}

	if len(rows) == 0 {
		return nil
	}

	return rows
}

// refOf extracts the transport handle of supported media.
func refOf(media domain.Media) (mediaRef, bool) {
	ref, ok := media.Ref.(mediaRef)
	if !ok || (ref.photo == nil && ref.document == nil) {
		return mediaRef{}, false
	}

	return ref, true
}

// inputMedia references already uploaded media for re-sending.
func inputMedia(ref mediaRef) tg.InputMediaClass {
	if ref.photo != nil {
		return &tg.InputMediaPhoto{ID: &tg.InputPhoto{
			ID:            ref.photo.ID,
			AccessHash:    ref.photo.AccessHash,
			FileReference: ref.photo.FileReference,
		}}
	}

	return &tg.InputMediaDocument{ID: &tg.InputDocument{
		ID:            ref.document.ID,
		AccessHash:    ref.document.AccessHash,
		FileReference: ref.document.FileReference,
	}}
}

// fileLocation addresses the full-size file for download.
func fileLocation(ref mediaRef) (tg.InputFileLocationClass, bool) {
	if ref.document != nil {
		return &tg.InputDocumentFileLocation{
			ID:            ref.document.ID,
			AccessHash:    ref.document.AccessHash,
			FileReference: ref.document.FileReference,
		}, true
	}

	thumb, ok := largestPhotoSize(ref.photo)
	if !ok {
		return nil, false
	}

	return &tg.InputPhotoFileLocation{
		ID:            ref.photo.ID,
		AccessHash:    ref.photo.AccessHash,
		FileReference: ref.photo.FileReference,
		ThumbSize:     thumb,
	}, true
}

// largestPhotoSize returns the type of the biggest size of a photo.
func largestPhotoSize(photo *tg.Photo) (string, bool) {
	var (
		best    string
		maxArea int
	)

	for _, size := range photo.Sizes {
		switch s := size.(type) {
		case *tg.PhotoSize:
			if s.W*s.H > maxArea {
				maxArea, best = s.W*s.H, s.Type
			}
		case *tg.PhotoSizeProgressive:
			if s.W*s.H > maxArea {
				maxArea, best = s.W*s.H, s.Type
			}
		}
	}

	return best, best != ""
}
