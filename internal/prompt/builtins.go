package prompt

// Built-in template catalogue. The production profile carries the stable
// v1/v2 templates; the development profile additionally loads draft
// templates under test before promotion.

func (r *Registry) loadBuiltins(profile string) {
	for _, t := range catalogueFor(profile) {
		// Builtins are internally consistent; Register cannot fail here.
		_ = r.Register(t)
	}
}

// catalogueFor returns the built-in templates for the profile.
func catalogueFor(profile string) []*Template {
	ts := builtinTemplates()
	if profile == "development" {
		ts = append(ts, draftTemplates()...)
	}
	return ts
}

func builtinTemplates() []*Template {
	return []*Template{
		// --- full analysis ---
		{
			ID:           "full-v2-ja",
			Category:     "full",
			Version:      "v2",
			Language:     "ja",
			SystemPrompt: "あなたは日本語コンテンツのマーケティング分析の専門家です。記事を分析し、指定されたJSON形式のみで回答してください。JSON以外のテキストは一切出力しないでください。",
			UserPromptTemplate: "以下の記事を分析し、JSON形式で回答してください。\n\n" +
				"必須フィールド:\n" +
				"- titles: 魅力的なタイトル案(最大5件、各30文字以内)\n" +
				"- hashtags: SNS向けハッシュタグ(ちょうど20件、#付き)\n" +
				"- summary: 要約(100文字以内)\n" +
				"- eyecatchPrompts: アイキャッチ画像生成用の英語プロンプト(3件)\n" +
				"- seoScore: SEO適性スコア(0-100)\n" +
				"- viralityScore: 拡散性スコア(0-100)\n\n" +
				"記事:\n{{articleText}}",
			Variables:    []string{"articleText"},
			OutputFormat: "json",
			Caching:      true,
			MaxTokens:    4000,
			Temperature:  0.7,
			Metadata:     Metadata{Author: "notefolio", Tags: []string{"analysis", "full", "stable"}},
		},
		{
			ID:           "full-v2-en",
			Category:     "full",
			Version:      "v2",
			Language:     "en",
			SystemPrompt: "You are a content marketing analyst. Analyze the article and respond only with the requested JSON. Do not output anything besides JSON.",
			UserPromptTemplate: "Analyze the following article and respond in JSON.\n\n" +
				"Required fields:\n" +
				"- titles: up to 5 compelling title candidates (max 60 chars each)\n" +
				"- hashtags: exactly 20 social hashtags (with #)\n" +
				"- summary: a summary of at most 100 characters\n" +
				"- eyecatchPrompts: 3 English prompts for eyecatch image generation\n" +
				"- seoScore: SEO fitness score (0-100)\n" +
				"- viralityScore: virality score (0-100)\n\n" +
				"Article:\n{{articleText}}",
			Variables:    []string{"articleText"},
			OutputFormat: "json",
			Caching:      true,
			MaxTokens:    4000,
			Temperature:  0.7,
			Metadata:     Metadata{Author: "notefolio", Tags: []string{"analysis", "full", "stable"}},
		},
		{
			ID:           "full-v1-ja",
			Category:     "full",
			Version:      "v1",
			Language:     "ja",
			SystemPrompt: "あなたは日本語記事の分析アシスタントです。JSON形式で回答してください。",
			UserPromptTemplate: "次の記事を分析して、titles(最大5件)、hashtags(20件)、summary(100文字以内)を含むJSONを返してください。\n\n" +
				"記事:\n{{articleText}}",
			Variables:    []string{"articleText"},
			OutputFormat: "json",
			MaxTokens:    3000,
			Temperature:  0.7,
			Metadata:     Metadata{Author: "notefolio", Tags: []string{"analysis", "full", "legacy"}},
		},

		// --- title generation ---
		{
			ID:           "title-v2-ja",
			Category:     "title",
			Version:      "v2",
			Language:     "ja",
			SystemPrompt: "あなたは読者の興味を引くタイトルを作る編集者です。JSON形式のみで回答してください。",
			UserPromptTemplate: "以下の記事に対して、クリックしたくなるタイトル案を最大5件、JSONの {\"titles\": [...]} 形式で提案してください。各タイトルは30文字以内。\n\n" +
				"記事:\n{{articleText}}",
			Variables:    []string{"articleText"},
			OutputFormat: "json",
			MaxTokens:    500,
			Temperature:  0.9,
			Metadata:     Metadata{Author: "notefolio", Tags: []string{"title", "stable"}},
		},
		{
			ID:           "title-v2-en",
			Category:     "title",
			Version:      "v2",
			Language:     "en",
			SystemPrompt: "You are an editor who writes compelling headlines. Respond only in JSON.",
			UserPromptTemplate: "Propose up to 5 click-worthy titles for the article below, as JSON {\"titles\": [...]}. Each title at most 60 characters.\n\n" +
				"Article:\n{{articleText}}",
			Variables:    []string{"articleText"},
			OutputFormat: "json",
			MaxTokens:    500,
			Temperature:  0.9,
			Metadata:     Metadata{Author: "notefolio", Tags: []string{"title", "stable"}},
		},

		// --- hashtag generation ---
		{
			ID:           "hashtag-v2-ja",
			Category:     "hashtag",
			Version:      "v2",
			Language:     "ja",
			SystemPrompt: "あなたはSNSマーケティングの専門家です。JSON形式のみで回答してください。",
			UserPromptTemplate: "以下の記事に最適なハッシュタグをちょうど20件、JSONの {\"hashtags\": [...]} 形式で提案してください。各タグは#で始めてください。\n\n" +
				"記事:\n{{articleText}}",
			Variables:    []string{"articleText"},
			OutputFormat: "json",
			MaxTokens:    500,
			Temperature:  0.8,
			Metadata:     Metadata{Author: "notefolio", Tags: []string{"hashtag", "stable"}},
		},
		{
			ID:           "hashtag-v2-en",
			Category:     "hashtag",
			Version:      "v2",
			Language:     "en",
			SystemPrompt: "You are a social media marketing specialist. Respond only in JSON.",
			UserPromptTemplate: "Propose exactly 20 hashtags for the article below, as JSON {\"hashtags\": [...]}. Each tag starts with #.\n\n" +
				"Article:\n{{articleText}}",
			Variables:    []string{"articleText"},
			OutputFormat: "json",
			MaxTokens:    500,
			Temperature:  0.8,
			Metadata:     Metadata{Author: "notefolio", Tags: []string{"hashtag", "stable"}},
		},

		// --- eyecatch prompt generation ---
		{
			ID:           "eyecatch-v2-ja",
			Category:     "eyecatch",
			Version:      "v2",
			Language:     "ja",
			SystemPrompt: "あなたは画像生成プロンプトの専門家です。JSON形式のみで回答してください。",
			UserPromptTemplate: "以下の記事のアイキャッチ画像を生成するための英語プロンプトを3件、JSONの {\"eyecatchPrompts\": [...]} 形式で作成してください。\n\n" +
				"記事:\n{{articleText}}",
			Variables:    []string{"articleText"},
			OutputFormat: "json",
			MaxTokens:    1000,
			Temperature:  0.9,
			Metadata:     Metadata{Author: "notefolio", Tags: []string{"eyecatch", "stable"}},
		},
		{
			ID:           "eyecatch-v2-en",
			Category:     "eyecatch",
			Version:      "v2",
			Language:     "en",
			SystemPrompt: "You are an expert at writing image-generation prompts. Respond only in JSON.",
			UserPromptTemplate: "Write 3 English prompts for generating an eyecatch image for the article below, as JSON {\"eyecatchPrompts\": [...]}.\n\n" +
				"Article:\n{{articleText}}",
			Variables:    []string{"articleText"},
			OutputFormat: "json",
			MaxTokens:    1000,
			Temperature:  0.9,
			Metadata:     Metadata{Author: "notefolio", Tags: []string{"eyecatch", "stable"}},
		},

		// --- SEO assessment ---
		{
			ID:           "seo-v2-ja",
			Category:     "seo",
			Version:      "v2",
			Language:     "ja",
			SystemPrompt: "あなたはSEOコンサルタントです。JSON形式のみで回答してください。",
			UserPromptTemplate: "以下の記事のSEO適性と拡散性を評価し、JSONの {\"seoScore\": 0-100, \"viralityScore\": 0-100, \"summary\": \"100文字以内の講評\"} 形式で回答してください。\n\n" +
				"記事:\n{{articleText}}",
			Variables:    []string{"articleText"},
			OutputFormat: "json",
			MaxTokens:    800,
			Temperature:  0.3,
			Metadata:     Metadata{Author: "notefolio", Tags: []string{"seo", "stable"}},
		},
		{
			ID:           "seo-v2-en",
			Category:     "seo",
			Version:      "v2",
			Language:     "en",
			SystemPrompt: "You are an SEO consultant. Respond only in JSON.",
			UserPromptTemplate: "Assess the SEO fitness and virality of the article below, as JSON {\"seoScore\": 0-100, \"viralityScore\": 0-100, \"summary\": \"review of at most 100 characters\"}.\n\n" +
				"Article:\n{{articleText}}",
			Variables:    []string{"articleText"},
			OutputFormat: "json",
			MaxTokens:    800,
			Temperature:  0.3,
			Metadata:     Metadata{Author: "notefolio", Tags: []string{"seo", "stable"}},
		},
	}
}

func draftTemplates() []*Template {
	return []*Template{
		{
			ID:           "title-v3-ja",
			Category:     "title",
			Version:      "v3",
			Language:     "ja",
			SystemPrompt: "あなたは読者心理に基づいてタイトルを設計するコピーライターです。JSON形式のみで回答してください。",
			UserPromptTemplate: "以下の記事について、好奇心ギャップを活用したタイトル案を最大5件、JSONの {\"titles\": [...]} 形式で提案してください。誇張表現は避けてください。\n\n" +
				"記事:\n{{articleText}}",
			Variables:    []string{"articleText"},
			OutputFormat: "json",
			MaxTokens:    500,
			Temperature:  0.9,
			Metadata:     Metadata{Author: "notefolio", Tags: []string{"title", "draft"}},
		},
	}
}
