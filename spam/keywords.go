package spam

import (
	"regexp"
	"strings"
)

// rule is one weighted detection pattern. The label is what surfaces in the
// moderation log's matched-keywords list.
type rule struct {
	label  string
	weight int
	re     *regexp.Regexp
}

// baseRules target the gambling-promo spam that floods live chats (the "judol"
// genre: slot-site shilling with contact numbers and win-rate claims), plus
// generic promo signals. Weights are tuned so a typical promo message clears a
// threshold of 50 on two or three matches while ordinary chat stays near zero.
var baseRules = []rule{
	{"judol", 50, regexp.MustCompile(`(?i)\bjudol\b`)},
	{"gacor", 40, regexp.MustCompile(`(?i)gacor`)},
	{"maxwin", 40, regexp.MustCompile(`(?i)max\s?win`)},
	{"jackpot", 25, regexp.MustCompile(`(?i)\bjp\b|jackpot`)},
	{"slot", 30, regexp.MustCompile(`(?i)\bslots?\b`)},
	{"rtp", 30, regexp.MustCompile(`(?i)\brtp\b`)},
	{"situs", 25, regexp.MustCompile(`(?i)\bsitus\b`)},
	{"deposit", 20, regexp.MustCompile(`(?i)\bdepo(?:sit)?\b`)},
	{"withdraw", 15, regexp.MustCompile(`(?i)\bwd\b|withdraw`)},
	{"bonus", 15, regexp.MustCompile(`(?i)\bbonus\b`)},
	{"cuan", 20, regexp.MustCompile(`(?i)\bcuan\b`)},
	{"contact-number", 35, regexp.MustCompile(`(?i)(?:wa|whatsapp|telp?|hub(?:ungi)?)?[\s.:+]*0?8\d{2}[\s.-]?\d{4}[\s.-]?\d{3,6}`)},
	{"win-rate", 25, regexp.MustCompile(`(?i)\b(?:100|9\d)\s?%`)},
	{"promo-link", 20, regexp.MustCompile(`(?i)https?://|bit\.ly|linktr\.ee|\.xyz\b|\.site\b`)},
}

// scoreText runs the heuristic rule set (base rules + custom words + styled
// unicode check) and returns the clamped score with the matched labels in
// detection order.
func scoreText(text string, customWords []string) (int, []string) {
	if text == "" {
		return 0, nil
	}
	score := 0
	var matched []string
	for _, r := range baseRules {
		if r.re.MatchString(text) {
			score += r.weight
			matched = append(matched, r.label)
		}
	}
	lower := strings.ToLower(text)
	for _, w := range customWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && strings.Contains(lower, w) {
			score += 40
			matched = append(matched, w)
		}
	}
	if hasStyledRunes(text) {
		score += 30
		matched = append(matched, "styled-text")
	}
	return clamp(score), matched
}

// hasStyledRunes detects the decorative unicode alphabets spam uses to dodge
// plain keyword filters (mathematical alphanumerics and fullwidth forms).
func hasStyledRunes(s string) bool {
	n := 0
	for _, r := range s {
		if (r >= 0x1D400 && r <= 0x1D7FF) || (r >= 0xFF01 && r <= 0xFF5E) {
			n++
			if n >= 3 {
				return true
			}
		}
	}
	return false
}
