package prompts

// Template names used by the narrator.
const (
	TemplateSystem       = "system"
	TemplateCampaign     = "campaign_creation"
	TemplateOpeningTurn  = "opening_turn"
	TemplateTurnState    = "turn_state"
	TemplateEpilogue     = "epilogue"
	TemplateSceneImage   = "scene_image"
)

func (e *TemplateEngine) registerDefaults() {
	templates := []*Template{
		{
			Name:        TemplateSystem,
			Description: "System instructions for turn narration",
			Content: `You are the narrator of a fantasy RPG adventure. The player is {{character_name}}, a {{character_race}} {{character_class}}. {{character_description}}

Campaign: {{campaign_title}}
Backstory: {{campaign_backstory}}
Story outline: {{campaign_acts}}
Possible endings: {{campaign_endings}}

You MUST respond with a single, valid JSON object and nothing else. The object must have exactly these keys:
1. "narrative": a vivid string (120-200 words) describing what happens next.
2. "visual_prompt": a one-sentence visual description of the new scene, suitable for an image generator.
3. "hp_current": the player's hit points after this turn, as an integer.
4. "gold": the player's gold after this turn, as a non-negative integer.
5. "inventory": the player's full inventory after this turn, as an array of item-name strings.
6. "options": exactly 3 short strings describing actions the player could take next. If game_over is true this array MUST be empty.
7. "game_over": a boolean. Set it to true when the player dies (hp_current <= 0) or the campaign reaches one of its endings.

Rules:
- Honor the story outline, but let the player's choices matter.
- When the player's hit points reach 0 the adventure ends.
- Never invent keys beyond the seven listed. Never wrap the JSON in markdown fences.`,
		},
		{
			Name:        TemplateCampaign,
			Description: "One-shot campaign skeleton generation",
			Content: `Create a fantasy RPG campaign for {{character_name}}, a {{character_race}} {{character_class}}. {{character_description}}
Theme seeds: {{theme_seeds}}

You MUST respond with a single, valid JSON object and nothing else, with exactly these keys:
1. "title": a short evocative campaign title.
2. "acts": an array of exactly 3 strings, one per act, each outlining that act in 2-3 sentences.
3. "possible_endings": an array of 3-5 strings, each a one-sentence ending the campaign could reach.
4. "backstory": a paragraph of world and character backstory (100-150 words).`,
		},
		{
			Name:        TemplateOpeningTurn,
			Description: "Initiating instruction for the first turn",
			Content: `Begin the adventure. Open act one: {{opening_act}}
Set the scene where the player starts, introduce the immediate situation, and offer the first three choices.`,
		},
		{
			Name:        TemplateTurnState,
			Description: "Per-turn structured scene state",
			Content: `Player action: {{player_action}}
{{dice_line}}Current state: hp={{hp}}, gold={{gold}}, inventory={{inventory}}.
Continue the story and respond with the JSON object.`,
		},
		{
			Name:        TemplateEpilogue,
			Description: "Closing epilogue for a finished adventure",
			Content: `The adventure of {{character_name}} has ended ({{ending_type}}) after {{turn_count}} turns. Final state: hp={{hp}}, gold={{gold}}, inventory={{inventory}}.

Write a closing for this adventure. You MUST respond with a single, valid JSON object and nothing else, with exactly these keys:
1. "epilogue_title": a short title for the epilogue.
2. "epilogue_text": the epilogue itself (100-180 words).
3. "ending_type": "{{ending_type}}".
4. "legacy": one sentence on how the world remembers {{character_name}}.
5. "visual_prompt": a one-sentence visual description of the final scene.`,
		},
		{
			Name:        TemplateSceneImage,
			Description: "Wrapper for scene-image prompts",
			Content: `{{visual_prompt}}, fantasy illustration, detailed digital painting, atmospheric lighting, no text`,
		},
	}

	for _, tmpl := range templates {
		e.RegisterTemplate(tmpl)
	}
}
