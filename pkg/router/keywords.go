package router

import "strings"

// toolKeywords flags content that likely needs tool calls to answer well.
// Bilingual (Chinese/English) because the channel adapters this runtime
// ships with (Feishu, DingTalk, QQ) are Chinese-chat-platform bridges, so
// inbound content is routinely Chinese.
var toolKeywords = []string{
	"search", "lookup", "browse", "fetch", "download", "execute", "run command",
	"read file", "write file", "list directory", "current weather", "latest",
	"搜索", "查询", "查找", "浏览", "下载", "执行", "运行命令", "读取文件", "写入文件",
	"列出目录", "天气", "最新",
}

// NeedsTool reports whether content's keywords suggest the model will need
// to invoke a tool to answer.
func NeedsTool(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range toolKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// matchesKeywords reports whether any of keywords occurs in content,
// case-insensitively.
func matchesKeywords(content string, keywords []string) bool {
	if len(keywords) == 0 {
		return false
	}
	lower := strings.ToLower(content)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// containsCodeBlock reports whether content carries a fenced or inline
// code block (backticks).
func containsCodeBlock(content string) bool {
	return strings.Contains(content, "`")
}
