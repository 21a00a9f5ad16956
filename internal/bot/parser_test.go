package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	p := NewCommandParser()

	cases := []struct {
		text  string
		cmd   string
		args  []string
		isCmd bool
	}{
		{"!вход", "вход", nil, true},
		{"  !Награды  ", "награды", nil, true},
		{".огонек", "огонек", nil, true},
		{"!кошелёк abc", "кошелек", []string{"abc"}, true},
		{"/start@RewardLedgerBot", "start", nil, true},
		{"/сводка 2024-03-11", "сводка", []string{"2024-03-11"}, true},
		{"привет всем", "", nil, false},
		{"!", "", nil, false},
		{"", "", nil, false},
	}
	for _, tc := range cases {
		cmd, args, ok := p.ParseCommand(tc.text)
		assert.Equal(t, tc.isCmd, ok, tc.text)
		assert.Equal(t, tc.cmd, cmd, tc.text)
		assert.Equal(t, tc.args, args, tc.text)
	}
}
