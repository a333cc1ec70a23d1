// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockserver

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Keywords that select a canned reply.
const (
	KeywordHello    = "你好"
	KeywordIntro    = "介绍一下自己"
	KeywordMarkdown = "markdown"
	KeywordCode     = "代码"
)

// GenericReply is used when neither a keyword nor a model default applies.
const GenericReply = "感谢你的提问！我会尽力为你提供帮助。"

// Responder produces the full reply text for a prompt.
type Responder interface {
	Respond(ctx context.Context, modelID, prompt string) (string, error)
}

var cannedReplies = map[string]map[string][]string{
	"mock-gpt": {
		KeywordHello: {
			"你好！我是Mock GPT，一个AI助手。我可以帮助你解答问题、生成内容、提供建议等。请问有什么我可以帮助你的吗？",
			"嗨！很高兴见到你。我是Mock GPT，一个模拟的语言模型。我能理解并生成自然语言，回答各种问题，协助完成各种任务。有什么需求尽管告诉我。",
		},
		KeywordIntro: {
			"我是Mock GPT，一个模拟的AI助手。我能够理解和生成自然语言，处理各种任务，提供信息和建议。我基于预设的回复模式来响应用户的问题。",
			"您好！我是Mock GPT，一个模拟的人工智能助手。我可以理解您的问题，提供回答，协助您完成各种任务。我会尽力为您提供帮助。",
		},
		KeywordMarkdown: {
			"# Mock GPT 的 Markdown 支持\n\n我支持多种 Markdown 格式：\n\n## 文本格式\n\n*斜体*、**粗体**、***粗斜体***\n\n## 分割线\n\n---\n\n## 代码\n\n`单行代码`\n\n## 列表\n\n- 项目 A\n- 项目 B\n  - 子项目 B1\n  - 子项目 B2",
		},
		KeywordCode: {
			"这是一个简单的 HTML 代码示例：\n\n```html\n<!DOCTYPE html>\n<html lang=\"zh-CN\">\n<head>\n    <meta charset=\"UTF-8\">\n    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n    <title>Mock GPT 示例</title>\n</head>\n<body>\n    <h1>欢迎使用 Mock GPT</h1>\n    <p>这是一个模拟的 AI 助手。</p>\n</body>\n</html>\n```",
		},
	},
	"mock-doubao": {
		KeywordHello: {
			"你好！我是Mock doubao，一个AI助手。我可以帮助你解答问题、提供信息和建议。请问有什么我可以帮助你的吗？",
			"嗨！很高兴为你服务。我是Mock doubao，一个模拟的语言模型。我能响应你的各种需求，无论是简单的问题还是复杂的任务。",
		},
		KeywordIntro: {
			"我是Mock doubao，一个模拟的语言模型。我设计用于以自然对话方式与人类交互，能够理解问题、生成文本、提供信息和协助完成各种任务。",
			"你好！我是Mock doubao，一个AI语言模型。我能够理解和生成自然语言，回答问题，协助创作，提供建议等。",
		},
		KeywordMarkdown: {
			"# Mock doubao 的 Markdown 演示\n\n## 标题层级\n\n# H1\n## H2\n### H3\n\n## 引用块\n\n> 这是一级引用\n>> 这是嵌套引用\n\n## 链接和图片\n\n[链接示例](https://example.com)\n![图片示例](https://via.placeholder.com/100)",
		},
		KeywordCode: {
			"以下是一个简单的 Java 代码示例：\n\n```java\npublic class HelloWorld {\n    public static void main(String[] args) {\n        // 打印欢迎信息\n        System.out.println(\"Hello from Mock doubao!\");\n        \n        // 创建一个变量\n        int number = 42;\n        System.out.println(\"The answer is: \" + number);\n    }\n}\n```",
		},
	},
	"mock-deepseek": {
		KeywordHello: {
			"你好！我是Mock deepseek，一个AI助手。我可以帮助你解答问题、提供信息和建议。请问有什么我可以帮助你的吗？",
			"嗨！很高兴为你服务。我是Mock deepseek，一个模拟的语言模型。我能响应你的各种需求，无论是简单的问题还是复杂的任务。",
		},
		KeywordIntro: {
			"我是Mock deepseek，一个模拟的语言模型。我设计用于以自然对话方式与人类交互，能够理解问题、生成文本、提供信息和协助完成各种任务。",
			"你好！我是Mock deepseek，一个AI语言模型。我能够理解和生成自然语言，回答问题，协助创作，提供建议等。",
		},
		KeywordMarkdown: {
			"# Mock deepseek 的 Markdown 演示\n\n## 标题层级\n\n# H1\n## H2\n### H3\n\n## 引用块\n\n> 这是一级引用\n>> 这是嵌套引用\n\n## 链接和图片\n\n[链接示例](https://example.com)\n![图片示例](https://via.placeholder.com/100)",
		},
		KeywordCode: {
			"以下是一个简单的 Python 代码示例：\n\n```python\nprint(\"Hello from Mock deepseek!\")\n```",
		},
	},
}

var defaultReplies = map[string]string{
	"mock-gpt":    "# 问题解答\n\n这是一个很好的问题！以下是我的解答：\n\n## 解决方案\n\n- 首先，需要明确问题的核心\n- 其次，考虑可能的解决途径\n- 最后，选择最佳方案\n\n*提示：输入 `markdown` 或 `代码` 查看格式示例*",
	"mock-doubao": "感谢你的提问！我会尽力为你提供帮助...\n\n**建议**：尝试使用 `markdown` 或 `代码` 关键词查看格式示例。",
}

// Generator picks canned replies. The lookup order is: exact keyword match
// on the lower-cased prompt, a prompt containing "markdown", a prompt
// containing "代码", the model's default reply, then GenericReply.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a Generator. A nil rng uses a randomly seeded source.
func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{rng: rng}
}

// Respond implements Responder.
func (g *Generator) Respond(_ context.Context, modelID, prompt string) (string, error) {
	return g.Reply(modelID, prompt), nil
}

// Reply returns the reply for prompt under modelID.
func (g *Generator) Reply(modelID, prompt string) string {
	key := normalizePrompt(prompt)
	table := cannedReplies[modelID]

	if candidates, ok := table[key]; ok {
		return g.pick(candidates)
	}
	if candidates, ok := table[KeywordMarkdown]; ok && strings.Contains(key, KeywordMarkdown) {
		return g.pick(candidates)
	}
	if candidates, ok := table[KeywordCode]; ok && strings.Contains(key, KeywordCode) {
		return g.pick(candidates)
	}
	if reply, ok := defaultReplies[modelID]; ok {
		return reply
	}
	return GenericReply
}

// Candidates lists every reply the generator may choose for a keyword.
func Candidates(modelID, keyword string) []string {
	return append([]string(nil), cannedReplies[modelID][keyword]...)
}

// DefaultReply returns the fallback reply used for modelID.
func DefaultReply(modelID string) string {
	if reply, ok := defaultReplies[modelID]; ok {
		return reply
	}
	return GenericReply
}

func (g *Generator) pick(candidates []string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return candidates[g.rng.IntN(len(candidates))]
}

func normalizePrompt(prompt string) string {
	return cases.Lower(language.Und).String(norm.NFC.String(prompt))
}
