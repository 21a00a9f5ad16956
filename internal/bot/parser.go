package bot

import "strings"

// CommandParser разбирает команды с префиксами "!", "." и "/".
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{validPrefixes: []string{"!", ".", "/"}}
}

// ParseCommand разбирает текст на команду (в нижнем регистре, "ё" → "е") и аргументы.
//
//	"!Вход"            → "вход", nil, true
//	"!кошелёк 4Nd1..." → "кошелек", ["4Nd1..."], true
//	"/start@RewardBot" → "start", nil, true
//	"привет"           → "", nil, false
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}
	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	command, _, _ = strings.Cut(command, "@") // /cmd@BotName в группах
	command = strings.ReplaceAll(command, "ё", "е")
	if command == "" {
		return "", nil, false
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	return command, args, true
}
