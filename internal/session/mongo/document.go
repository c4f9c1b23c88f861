package mongo

import (
	"time"

	"github.com/deckforge/orchestrator/internal/session"
)

type (
	sessionDocument struct {
		SessionID            string           `bson:"session_id"`
		UserID                string           `bson:"user_id"`
		CurrentState          string           `bson:"current_state"`
		History               []entryDocument  `bson:"history"`
		Strawman              *strawmanDocument `bson:"strawman,omitempty"`
		FinalPresentationURL  string           `bson:"final_presentation_url,omitempty"`
		ActiveSchedulerRun    string           `bson:"active_scheduler_run,omitempty"`
		CreatedAt             time.Time        `bson:"created_at"`
		UpdatedAt             time.Time        `bson:"updated_at"`
	}

	entryDocument struct {
		Role           string    `bson:"role"`
		State          string    `bson:"state"`
		ContentVariant string    `bson:"content_variant,omitempty"`
		Content        string    `bson:"content"`
		Timestamp      time.Time `bson:"timestamp"`
		SeqIndex       int64     `bson:"seq_index"`
		MessageID      string    `bson:"message_id,omitempty"`
	}

	strawmanDocument struct {
		MainTitle              string          `bson:"main_title"`
		OverallTheme           string          `bson:"overall_theme"`
		DesignSuggestions      string          `bson:"design_suggestions,omitempty"`
		TargetAudience         string          `bson:"target_audience,omitempty"`
		DurationMinutes        int             `bson:"duration_minutes"`
		PreviewURL             string          `bson:"preview_url,omitempty"`
		PreviewPresentationID  string          `bson:"preview_presentation_id,omitempty"`
		Slides                 []slideDocument `bson:"slides"`
	}

	slideDocument struct {
		SlideID                 string            `bson:"slide_id"`
		SlideNumber             int               `bson:"slide_number"`
		Title                   string            `bson:"title"`
		Narrative               string            `bson:"narrative"`
		KeyPoints               []string          `bson:"key_points,omitempty"`
		AnalyticsNeeded         *briefDocument    `bson:"analytics_needed,omitempty"`
		VisualsNeeded           *briefDocument    `bson:"visuals_needed,omitempty"`
		DiagramsNeeded          *briefDocument    `bson:"diagrams_needed,omitempty"`
		TablesNeeded            *briefDocument    `bson:"tables_needed,omitempty"`
		StructurePreference     string            `bson:"structure_preference,omitempty"`
		SemanticGroup           string            `bson:"semantic_group,omitempty"`
		LayoutID                string            `bson:"layout_id,omitempty"`
		SlideTypeClassification string            `bson:"slide_type_classification,omitempty"`
		VariantID               string            `bson:"variant_id,omitempty"`
		GeneratedContent        map[string]string `bson:"generated_content,omitempty"`
	}

	briefDocument struct {
		Goal    string `bson:"goal"`
		Content string `bson:"content"`
		Style   string `bson:"style"`
	}
)

func fromSession(s session.Session) sessionDocument {
	doc := sessionDocument{
		SessionID:            s.ID,
		UserID:               s.UserID,
		CurrentState:         string(s.CurrentState),
		FinalPresentationURL: s.FinalPresentationURL,
		ActiveSchedulerRun:   s.ActiveSchedulerRun,
		CreatedAt:            s.CreatedAt.UTC(),
		UpdatedAt:            s.UpdatedAt.UTC(),
	}
	if s.Strawman != nil {
		sm := fromStrawman(*s.Strawman)
		doc.Strawman = &sm
	}
	return doc
}

func (doc sessionDocument) toSession() session.Session {
	out := session.Session{
		ID:                   doc.SessionID,
		UserID:               doc.UserID,
		CurrentState:         session.DialogState(doc.CurrentState),
		FinalPresentationURL: doc.FinalPresentationURL,
		ActiveSchedulerRun:   doc.ActiveSchedulerRun,
		CreatedAt:            doc.CreatedAt,
		UpdatedAt:            doc.UpdatedAt,
	}
	if doc.Strawman != nil {
		sm := doc.Strawman.toStrawman()
		out.Strawman = &sm
	}
	out.ConversationHistory = make([]session.Entry, len(doc.History))
	for i, e := range doc.History {
		out.ConversationHistory[i] = e.toEntry()
	}
	return out
}

func fromEntry(e session.Entry) entryDocument {
	return entryDocument{
		Role:           string(e.Role),
		State:          string(e.State),
		ContentVariant: e.ContentVariant,
		Content:        e.Content,
		Timestamp:      e.Timestamp.UTC(),
		SeqIndex:       e.SeqIndex,
		MessageID:      e.MessageID,
	}
}

func (doc entryDocument) toEntry() session.Entry {
	return session.Entry{
		Role:           session.Role(doc.Role),
		State:          session.DialogState(doc.State),
		ContentVariant: doc.ContentVariant,
		Content:        doc.Content,
		Timestamp:      doc.Timestamp,
		SeqIndex:       doc.SeqIndex,
		MessageID:      doc.MessageID,
	}
}

func fromStrawman(sm session.Strawman) strawmanDocument {
	doc := strawmanDocument{
		MainTitle:             sm.MainTitle,
		OverallTheme:          sm.OverallTheme,
		DesignSuggestions:     sm.DesignSuggestions,
		TargetAudience:        sm.TargetAudience,
		DurationMinutes:       sm.DurationMinutes,
		PreviewURL:            sm.PreviewURL,
		PreviewPresentationID: sm.PreviewPresentationID,
		Slides:                make([]slideDocument, len(sm.Slides)),
	}
	for i, sl := range sm.Slides {
		doc.Slides[i] = fromSlide(sl)
	}
	return doc
}

func (doc strawmanDocument) toStrawman() session.Strawman {
	sm := session.Strawman{
		MainTitle:             doc.MainTitle,
		OverallTheme:          doc.OverallTheme,
		DesignSuggestions:     doc.DesignSuggestions,
		TargetAudience:        doc.TargetAudience,
		DurationMinutes:       doc.DurationMinutes,
		PreviewURL:            doc.PreviewURL,
		PreviewPresentationID: doc.PreviewPresentationID,
		Slides:                make([]session.Slide, len(doc.Slides)),
	}
	for i, sl := range doc.Slides {
		sm.Slides[i] = sl.toSlide()
	}
	return sm
}

func fromSlide(sl session.Slide) slideDocument {
	return slideDocument{
		SlideID:                 sl.SlideID,
		SlideNumber:             sl.SlideNumber,
		Title:                   sl.Title,
		Narrative:               sl.Narrative,
		KeyPoints:               sl.KeyPoints,
		AnalyticsNeeded:         fromBrief(sl.AnalyticsNeeded),
		VisualsNeeded:           fromBrief(sl.VisualsNeeded),
		DiagramsNeeded:          fromBrief(sl.DiagramsNeeded),
		TablesNeeded:            fromBrief(sl.TablesNeeded),
		StructurePreference:     sl.StructurePreference,
		SemanticGroup:           sl.SemanticGroup,
		LayoutID:                string(sl.LayoutID),
		SlideTypeClassification: sl.SlideTypeClassification,
		VariantID:               sl.VariantID,
		GeneratedContent:        sl.GeneratedContent,
	}
}

func (doc slideDocument) toSlide() session.Slide {
	return session.Slide{
		SlideID:                 doc.SlideID,
		SlideNumber:             doc.SlideNumber,
		Title:                   doc.Title,
		Narrative:               doc.Narrative,
		KeyPoints:               doc.KeyPoints,
		AnalyticsNeeded:         doc.AnalyticsNeeded.toBrief(),
		VisualsNeeded:           doc.VisualsNeeded.toBrief(),
		DiagramsNeeded:          doc.DiagramsNeeded.toBrief(),
		TablesNeeded:            doc.TablesNeeded.toBrief(),
		StructurePreference:     doc.StructurePreference,
		SemanticGroup:           doc.SemanticGroup,
		LayoutID:                session.LayoutID(doc.LayoutID),
		SlideTypeClassification: doc.SlideTypeClassification,
		VariantID:               doc.VariantID,
		GeneratedContent:        doc.GeneratedContent,
	}
}

func fromBrief(b *session.StructuredBrief) *briefDocument {
	if b == nil {
		return nil
	}
	return &briefDocument{Goal: b.Goal, Content: b.Content, Style: b.Style}
}

func (doc *briefDocument) toBrief() *session.StructuredBrief {
	if doc == nil {
		return nil
	}
	return &session.StructuredBrief{Goal: doc.Goal, Content: doc.Content, Style: doc.Style}
}
