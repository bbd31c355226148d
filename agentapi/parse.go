package agentapi

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"agentchat/model"
	"agentchat/transcript"
)

// questionPrefix derives the id of the user half of a history item from
// the item id.
const questionPrefix = "q-"

func unixTime(r gjson.Result) time.Time {
	if !r.Exists() || r.Int() == 0 {
		return time.Time{}
	}
	return time.Unix(r.Int(), 0)
}

func conversationFrom(item gjson.Result) model.Conversation {
	conv := model.Conversation{
		ID:        item.Get("id").String(),
		Name:      item.Get("name").String(),
		CreatedAt: unixTime(item.Get("created_at")),
		UpdatedAt: unixTime(item.Get("updated_at")),
	}
	if inputs := item.Get("inputs"); inputs.IsObject() {
		if m, ok := inputs.Value().(map[string]any); ok && len(m) > 0 {
			conv.Inputs = m
		}
	}
	return conv
}

func parseConversation(body []byte) (model.Conversation, bool) {
	parsed := gjson.ParseBytes(body)
	if parsed.Get("data").IsObject() {
		parsed = parsed.Get("data")
	}
	conv := conversationFrom(parsed)
	return conv, conv.ID != ""
}

func parseConversations(body []byte) ([]model.Conversation, bool) {
	parsed := gjson.ParseBytes(body)

	var convs []model.Conversation
	parsed.Get("data").ForEach(func(_, item gjson.Result) bool {
		if conv := conversationFrom(item); conv.ID != "" {
			convs = append(convs, conv)
		}
		return true
	})
	return convs, parsed.Get("has_more").Bool()
}

// parseMessages expands history items into user and answer messages. It
// also returns the id of the oldest item for paging further back.
func parseMessages(body []byte, conversationID string) ([]transcript.Message, string, bool) {
	parsed := gjson.ParseBytes(body)

	var (
		msgs     []transcript.Message
		oldestID string
	)
	parsed.Get("data").ForEach(func(_, item gjson.Result) bool {
		id := item.Get("id").String()
		if id == "" {
			return true
		}
		if oldestID == "" {
			oldestID = id
		}

		convID := item.Get("conversation_id").String()
		if convID == "" {
			convID = conversationID
		}
		created := unixTime(item.Get("created_at"))
		query := item.Get("query").String()

		msgs = append(msgs, transcript.Message{
			ID:             questionPrefix + id,
			ConversationID: convID,
			Query:          query,
			Content:        query,
			CreatedAt:      created,
		})

		answer := transcript.Message{
			ID:             id,
			ConversationID: convID,
			Content:        item.Get("answer").String(),
			IsAnswer:       true,
			IsError:        item.Get("status").String() == "error",
			CreatedAt:      created,
		}
		if meta := item.Get("metadata"); meta.IsObject() {
			answer.Metadata = json.RawMessage(meta.Raw)
		}
		item.Get("agent_thoughts").ForEach(func(_, th gjson.Result) bool {
			answer.AgentThoughts = append(answer.AgentThoughts, transcript.Thought{
				ID:          th.Get("id").String(),
				Thought:     th.Get("thought").String(),
				Tool:        th.Get("tool").String(),
				ToolInput:   th.Get("tool_input").String(),
				Observation: th.Get("observation").String(),
				Position:    int(th.Get("position").Int()),
			})
			return true
		})
		item.Get("message_files").ForEach(func(_, f gjson.Result) bool {
			answer.Files = append(answer.Files, transcript.File{
				ID:        f.Get("id").String(),
				Type:      f.Get("type").String(),
				URL:       f.Get("url").String(),
				BelongsTo: f.Get("belongs_to").String(),
			})
			return true
		})
		msgs = append(msgs, answer)
		return true
	})
	return msgs, oldestID, parsed.Get("has_more").Bool()
}

// parseParameters reads /parameters. Every user_input_form entry is an
// object with a single key naming the control type.
func parseParameters(body []byte) *model.AppParameters {
	parsed := gjson.ParseBytes(body)

	params := &model.AppParameters{
		OpeningStatement: parsed.Get("opening_statement").String(),
	}
	parsed.Get("suggested_questions").ForEach(func(_, q gjson.Result) bool {
		if s := q.String(); s != "" {
			params.SuggestedQuestions = append(params.SuggestedQuestions, s)
		}
		return true
	})
	parsed.Get("user_input_form").ForEach(func(_, entry gjson.Result) bool {
		entry.ForEach(func(kind, ctl gjson.Result) bool {
			field := model.InputField{
				Variable: ctl.Get("variable").String(),
				Label:    ctl.Get("label").String(),
				Type:     kind.String(),
				Required: ctl.Get("required").Bool(),
				Default:  ctl.Get("default").String(),
			}
			ctl.Get("options").ForEach(func(_, o gjson.Result) bool {
				field.Options = append(field.Options, o.String())
				return true
			})
			if field.Variable != "" {
				params.UserInputForm = append(params.UserInputForm, field)
			}
			return false
		})
		return true
	})
	return params
}
