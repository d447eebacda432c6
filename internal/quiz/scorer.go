package quiz

import (
	"math"
	"strings"
	"unicode"
)

// DefaultPartialRatio 部分命中关键词时的得分比例
const DefaultPartialRatio = 0.5

// TextGrader 主观题（简答/代码）评分器，返回 [0, points] 之间的得分
type TextGrader interface {
	Grade(rubric TextRubric, submission string, points int) int
}

// KeywordGrader 关键词重合度评分：全部命中得满分，部分命中得 floor(points*ratio)，
// 一个都没有得 0。这是一个很粗糙的规则，不理解同义词，也挡不住堆砌关键词。
type KeywordGrader struct {
	PartialRatio float64
}

func NewKeywordGrader(partialRatio float64) *KeywordGrader {
	if partialRatio <= 0 || partialRatio >= 1 {
		partialRatio = DefaultPartialRatio
	}
	return &KeywordGrader{PartialRatio: partialRatio}
}

func (g *KeywordGrader) Grade(rubric TextRubric, submission string, points int) int {
	answer := strings.ToLower(strings.TrimSpace(submission))
	if answer == "" {
		return 0
	}

	keywords := rubric.Keywords
	if len(keywords) == 0 {
		keywords = ExtractKeywords(rubric.ReferenceAnswer)
	}
	if len(keywords) == 0 {
		// 参考答案里提取不出关键词时退化为精确比较
		if normalizeSpace(answer) == normalizeSpace(strings.ToLower(rubric.ReferenceAnswer)) {
			return points
		}
		return 0
	}

	hits := 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(answer, kw) {
			hits++
		}
	}

	switch {
	case hits == 0:
		return 0
	case hits == len(keywords):
		return points
	default:
		return int(math.Floor(float64(points) * g.PartialRatio))
	}
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"from": true, "are": true, "was": true, "were": true, "will": true, "into": true,
	"its": true, "has": true, "have": true, "not": true, "but": true, "you": true,
	"your": true, "use": true, "using": true, "can": true, "all": true, "any": true,
	"each": true, "which": true, "when": true, "then": true, "than": true, "they": true,
	"them": true, "their": true, "there": true, "what": true, "how": true, "why": true,
	"also": true, "such": true, "more": true, "most": true, "other": true, "some": true,
	"only": true, "over": true, "our": true, "out": true, "via": true, "per": true,
	"one": true, "two": true, "should": true, "would": true, "could": true, "been": true,
	"being": true, "does": true, "did": true, "just": true, "like": true, "used": true,
}

// ExtractKeywords 从参考答案中提取关键词：转小写，按非字母数字切分，
// 去掉停用词和长度小于 3 的词，去重并保持出现顺序
func ExtractKeywords(reference string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(reference), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	seen := make(map[string]bool, len(tokens))
	var out []string
	for _, t := range tokens {
		if len([]rune(t)) < 3 || stopWords[t] || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ScoreSheet 评分结果
type ScoreSheet struct {
	Achieved  int
	Max       int
	Questions []QuestionScore
	Passed    bool
}

// Scorer 纯函数评分：不修改输入，没有副作用
type Scorer struct {
	text TextGrader
}

// NewScorer text 为空时使用默认的关键词评分
func NewScorer(text TextGrader) *Scorer {
	if text == nil {
		text = NewKeywordGrader(DefaultPartialRatio)
	}
	return &Scorer{text: text}
}

// Score 遍历定义中的每一道题（不只是已作答的），保证 Max 始终等于总分
func (s *Scorer) Score(def *Definition, answers Answers) ScoreSheet {
	sheet := ScoreSheet{Questions: make([]QuestionScore, 0, len(def.Questions))}
	for _, q := range def.Questions {
		a, answered := answers[q.QuestionID()]
		awarded := s.Award(q, a, answered)

		sheet.Max += q.Worth()
		sheet.Achieved += awarded
		sheet.Questions = append(sheet.Questions, QuestionScore{
			QuestionID: q.QuestionID(),
			Awarded:    awarded,
			Max:        q.Worth(),
		})
	}
	sheet.Passed = Passed(sheet.Achieved, sheet.Max, def.PassingScorePercent)
	return sheet
}

// Award 单题得分，未作答得 0
func (s *Scorer) Award(q Question, a Answer, answered bool) int {
	if !answered {
		return 0
	}

	var awarded int
	switch v := q.(type) {
	case MultipleChoice:
		if idx, ok := a.Choice(); ok && idx == v.CorrectIndex {
			awarded = v.Points
		}
	case TrueFalse:
		if b, ok := a.Bool(); ok && b == v.CorrectValue {
			awarded = v.Points
		}
	case FreeText:
		if text, ok := a.Text(); ok {
			awarded = s.text.Grade(v.TextRubric, text, v.Points)
		}
	case Code:
		if text, ok := a.Text(); ok {
			awarded = s.text.Grade(v.TextRubric, text, v.Points)
		}
	}

	if awarded < 0 {
		return 0
	}
	if awarded > q.Worth() {
		return q.Worth()
	}
	return awarded
}

// Passed 得分率 >= 及格线即通过，边界值算通过
func Passed(achieved, total, passingPercent int) bool {
	if total <= 0 {
		return false
	}
	return float64(achieved*100)/float64(total) >= float64(passingPercent)
}
