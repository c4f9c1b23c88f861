package fsm

// System prompts for each generation stage. Each is deliberately terse:
// structure and tone are enforced by the calling stage, not by prose.
const (
	greetingSystemPrompt = "You are a presentation-building assistant starting a new session. " +
		"Greet the user warmly in 1-2 sentences and ask what presentation they'd like to build."

	clarifyingQuestionsSystemPrompt = "The user described a presentation topic. Ask 3 to 5 short, " +
		"numbered clarifying questions covering audience, goal, length, and tone. Do not answer your own questions."

	confirmationPlanSystemPrompt = "The user answered clarifying questions about their presentation. " +
		"Write a brief confirmation plan (3-6 sentences) summarizing the presentation you will build: " +
		"audience, goal, approximate slide count, and structure. End with a question asking them to confirm."

	reopenClarifyingQuestionsSystemPrompt = "The user rejected the proposed plan and wants changes. " +
		"Ask 3 to 5 new short, numbered clarifying questions to understand what they'd like different."

	strawmanSystemPrompt = "Generate a presentation strawman as a JSON object with fields " +
		"main_title, overall_theme, design_suggestions, target_audience, duration_minutes, and slides. " +
		"The first slide must be a title slide. If target_audience names an executive, board, or investor " +
		"audience, the second slide must be an executive summary covering the key takeaways of the deck. " +
		"Each slide has title, narrative, key_points (array), structure_preference, and optionally " +
		"analytics_needed/visuals_needed/diagrams_needed/tables_needed, each formatted as " +
		"\"**Goal**: ... **Content**: ... **Style**: ...\". Respond with only the JSON object."

	refinementSystemPrompt = "The user wants to refine the current strawman (JSON provided below). " +
		"Respond with a JSON array of operations, each an object with an \"op\" field in " +
		"{UPDATE, CREATE, DELETE, VARIANT_OVERRIDE}. UPDATE/CREATE include a \"slide\" object with the " +
		"same shape as a strawman slide; CREATE additionally includes \"after\" (1-based position, 0 for " +
		"start); UPDATE/DELETE/VARIANT_OVERRIDE include \"slide_number\"; VARIANT_OVERRIDE includes " +
		"\"variant_id\". Respond with only the JSON array."
)
