package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"

	"emberquest/server/internal/config"
	"emberquest/server/internal/interfaces"
	"emberquest/server/internal/models"
	"emberquest/server/internal/prompts"
)

// Narrator generates campaigns, turn outcomes and epilogues over an
// OpenAI-compatible chat API. Every response is a strict JSON contract:
// anything malformed or missing required fields is a failure, never a
// partial success.
type Narrator struct {
	client  *Client
	prompts *prompts.TemplateEngine
}

func NewNarrator(cfg config.NarratorConfig) *Narrator {
	return &Narrator{
		client:  NewClient(cfg),
		prompts: prompts.NewTemplateEngine(),
	}
}

// CreateCampaign produces the immutable story skeleton from theme seeds.
func (n *Narrator) CreateCampaign(ctx context.Context, character models.Character, themeSeeds []string) (models.Campaign, error) {
	prompt, err := n.prompts.Render(prompts.TemplateCampaign, map[string]string{
		"character_name":        character.Name,
		"character_race":        character.Race,
		"character_class":       character.Class,
		"character_description": character.Description,
		"theme_seeds":           strings.Join(themeSeeds, ", "),
	})
	if err != nil {
		return models.Campaign{}, err
	}

	content, err := n.client.Complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	})
	if err != nil {
		return models.Campaign{}, err
	}

	var campaign models.Campaign
	if err := json.Unmarshal([]byte(cleanJSON(content)), &campaign); err != nil {
		return models.Campaign{}, fmt.Errorf("malformed campaign response: %w", err)
	}
	if !campaign.Valid() {
		return models.Campaign{}, fmt.Errorf("campaign response missing required fields")
	}
	return campaign, nil
}

// NextTurn replays the conversation history and asks for the next outcome.
func (n *Narrator) NextTurn(ctx context.Context, req *interfaces.TurnRequest) (*interfaces.TurnOutcome, error) {
	messages, err := n.buildTurnMessages(req)
	if err != nil {
		return nil, err
	}

	content, err := n.client.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	var outcome interfaces.TurnOutcome
	if err := json.Unmarshal([]byte(cleanJSON(content)), &outcome); err != nil {
		return nil, fmt.Errorf("malformed turn response: %w", err)
	}
	if err := outcome.Validate(); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// buildTurnMessages assembles the narrator input: system instructions, the
// replayed (action, response) history, and the structured state for this
// turn. The replay is deterministic, so a resumed session sends exactly what
// an uninterrupted one would have.
func (n *Narrator) buildTurnMessages(req *interfaces.TurnRequest) ([]openai.ChatCompletionMessage, error) {
	campaign := req.Scene.Campaign
	system, err := n.prompts.Render(prompts.TemplateSystem, map[string]string{
		"character_name":        req.Scene.Character.Name,
		"character_race":        req.Scene.Character.Race,
		"character_class":       req.Scene.Character.Class,
		"character_description": req.Scene.Character.Description,
		"campaign_title":        campaign.Title,
		"campaign_backstory":    campaign.Backstory,
		"campaign_acts":         numberedList(campaign.Acts),
		"campaign_endings":      numberedList(campaign.PossibleEndings),
	})
	if err != nil {
		return nil, err
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}

	for _, entry := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: n.userContent(entry.PlayerAction, campaign),
		})
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: entry.Response,
		})
	}

	var current string
	if req.FirstTurn {
		current, err = n.openingInstruction(campaign)
		if err != nil {
			return nil, err
		}
	} else {
		diceLine := ""
		if req.Scene.DiceRoll > 0 {
			diceLine = fmt.Sprintf("The player rolled a %d on a d20.\n", req.Scene.DiceRoll)
		}
		current, err = n.prompts.Render(prompts.TemplateTurnState, map[string]string{
			"player_action": req.PlayerAction,
			"dice_line":     diceLine,
			"hp":            strconv.Itoa(req.Scene.HP),
			"gold":          strconv.Itoa(req.Scene.Gold),
			"inventory":     strings.Join(req.Scene.Inventory, ", "),
		})
		if err != nil {
			return nil, err
		}
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: current,
	})

	return messages, nil
}

// userContent maps a stored player action back to the user message that
// carried it. An empty action is the opening turn, whose message is the
// initiating instruction derived from the campaign's first act.
func (n *Narrator) userContent(playerAction string, campaign models.Campaign) string {
	if playerAction == "" {
		content, err := n.openingInstruction(campaign)
		if err == nil {
			return content
		}
	}
	return playerAction
}

func (n *Narrator) openingInstruction(campaign models.Campaign) (string, error) {
	opening := ""
	if len(campaign.Acts) > 0 {
		opening = campaign.Acts[0]
	}
	return n.prompts.Render(prompts.TemplateOpeningTurn, map[string]string{
		"opening_act": opening,
	})
}

// Epilogue produces a closing for a finished adventure.
func (n *Narrator) Epilogue(ctx context.Context, adv *models.Adventure, history []interfaces.ContextEntry) (*interfaces.Epilogue, error) {
	prompt, err := n.prompts.Render(prompts.TemplateEpilogue, map[string]string{
		"character_name": adv.Character.Name,
		"ending_type":    adv.EndingType,
		"turn_count":     strconv.Itoa(adv.TurnCount),
		"hp":             strconv.Itoa(adv.HP),
		"gold":           strconv.Itoa(adv.Gold),
		"inventory":      strings.Join(adv.Inventory(), ", "),
	})
	if err != nil {
		return nil, err
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)*2+1)
	campaign, _ := adv.Campaign()
	for _, entry := range history {
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: n.userContent(entry.PlayerAction, campaign)},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: entry.Response},
		)
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	content, err := n.client.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	var epilogue interfaces.Epilogue
	if err := json.Unmarshal([]byte(cleanJSON(content)), &epilogue); err != nil {
		return nil, fmt.Errorf("malformed epilogue response: %w", err)
	}
	if epilogue.Title == "" || epilogue.Text == "" {
		return nil, fmt.Errorf("epilogue response missing required fields")
	}
	return &epilogue, nil
}

// ScenePrompt wraps a turn's visual prompt in the image-generation template.
func (n *Narrator) ScenePrompt(visualPrompt string) string {
	rendered, err := n.prompts.Render(prompts.TemplateSceneImage, map[string]string{
		"visual_prompt": visualPrompt,
	})
	if err != nil {
		return visualPrompt
	}
	return rendered
}

func numberedList(items []string) string {
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return strings.TrimRight(b.String(), "\n")
}

// cleanJSON strips markdown code fences some models wrap around JSON output.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
