package authgate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantGitHub bool
		wantEmail  bool
		wantList   []string
	}{
		{name: "both", raw: "github,email", wantGitHub: true, wantEmail: true, wantList: []string{"github", "email"}},
		{name: "whitespace and case", raw: "  GitHub , EMAIL ", wantGitHub: true, wantEmail: true, wantList: []string{"github", "email"}},
		{name: "github only", raw: "github", wantGitHub: true, wantList: []string{"github"}},
		{name: "empty", raw: "", wantList: []string{}},
		{name: "empty entries and duplicates", raw: ",email,,email,", wantEmail: true, wantList: []string{"email"}},
		{name: "unknown provider is listed but not github/email", raw: "web3", wantList: []string{"web3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Parse(tt.raw)
			assert.Equal(t, tt.wantGitHub, p.GitHubEnabled())
			assert.Equal(t, tt.wantEmail, p.EmailEnabled())
			assert.Equal(t, tt.wantList, p.Enabled())
		})
	}
}

func TestIsProviderEnabled_CaseInsensitive(t *testing.T) {
	p := Parse("github")
	assert.True(t, p.IsProviderEnabled("GITHUB"))
	assert.False(t, p.IsProviderEnabled("email"))
}

func TestEnabled_ReturnsCopy(t *testing.T) {
	p := Parse("github,email")
	list := p.Enabled()
	list[0] = "tampered"
	assert.True(t, p.GitHubEnabled())
}
