package reel

import (
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Winner labels in a Comparison.
const (
	WinnerReel1 = "reel1"
	WinnerReel2 = "reel2"
	WinnerTie   = "tie"
)

// defaultReach stands in when the author's follower count is unknown.
const defaultReach = 50

// Metrics are the derived performance figures of one Record.
type Metrics struct {
	// Engagement is (likes + comments) / max(views, 1) as a percentage.
	Engagement float64 `json:"engagement"`
	// Reach is views / followers as a percentage.
	Reach float64 `json:"reach"`
	// Virality is a 0-100 score.
	Virality int `json:"virality"`
}

// ComputeMetrics derives Metrics from rec.
func ComputeMetrics(rec Record) Metrics {
	engagement := float64(rec.LikeCount+rec.CommentCount) / float64(max(rec.ViewCount, 1)) * 100

	reach := float64(defaultReach)
	if rec.Followers > 0 {
		reach = float64(rec.ViewCount) / float64(rec.Followers) * 100
	}

	virality := int(math.Round(engagement*10 + float64(rec.CommentCount)/10))
	return Metrics{
		Engagement: engagement,
		Reach:      reach,
		Virality:   min(virality, 100),
	}
}

// ReelSummary is the headline numbers of one side of a Comparison.
type ReelSummary struct {
	Username string `json:"username"`
	Likes    int    `json:"likes"`
	Comments int    `json:"comments"`
	Views    int    `json:"views"`
}

// MetricComparison holds one metric for both reels.
type MetricComparison struct {
	Reel1  float64 `json:"reel1"`
	Reel2  float64 `json:"reel2"`
	Winner string  `json:"winner"`
}

// Comparison is the side-by-side result of Compare.
type Comparison struct {
	Reel1           ReelSummary `json:"reel1"`
	Reel2           ReelSummary `json:"reel2"`
	Comparison      Scores      `json:"comparison"`
	Insights        []string    `json:"insights"`
	Recommendations []string    `json:"recommendations"`
}

// Scores groups the per-metric comparisons.
type Scores struct {
	Engagement MetricComparison `json:"engagement"`
	Reach      MetricComparison `json:"reach"`
	Virality   MetricComparison `json:"virality"`
}

var recommendations = []string{
	"Study the winning reel's content style and format",
	"Analyze timing and hashtag strategies of better performing content",
	"Consider A/B testing different content approaches",
	"Focus on elements that drove higher engagement",
}

// Compare ranks two records on engagement, reach, and virality. The
// virality winner is the reel with more likes; reel2 wins ties there.
func Compare(a, b Record) Comparison {
	ma, mb := ComputeMetrics(a), ComputeMetrics(b)

	viralityWinner := WinnerReel2
	if a.LikeCount > b.LikeCount {
		viralityWinner = WinnerReel1
	}

	return Comparison{
		Reel1: summarize(a, "User 1"),
		Reel2: summarize(b, "User 2"),
		Comparison: Scores{
			Engagement: MetricComparison{Reel1: ma.Engagement, Reel2: mb.Engagement, Winner: winner(ma.Engagement, mb.Engagement)},
			Reach:      MetricComparison{Reel1: ma.Reach, Reel2: mb.Reach, Winner: winner(ma.Reach, mb.Reach)},
			Virality:   MetricComparison{Reel1: float64(ma.Virality), Reel2: float64(mb.Virality), Winner: viralityWinner},
		},
		Insights: []string{
			fmt.Sprintf("Reel 1 has %s engagement rate", pick(ma.Engagement > mb.Engagement, "higher", "lower")),
			fmt.Sprintf("Reel 2 received %s comments", pick(b.CommentCount > a.CommentCount, "more", "fewer")),
			fmt.Sprintf("Overall performance difference: %.1f%%", math.Abs(ma.Engagement-mb.Engagement)),
		},
		Recommendations: append([]string(nil), recommendations...),
	}
}

func summarize(rec Record, fallback string) ReelSummary {
	name := rec.Username
	if name == "" {
		name = fallback
	}
	return ReelSummary{
		Username: name,
		Likes:    rec.LikeCount,
		Comments: rec.CommentCount,
		Views:    rec.ViewCount,
	}
}

func winner(a, b float64) string {
	switch {
	case a > b:
		return WinnerReel1
	case b > a:
		return WinnerReel2
	default:
		return WinnerTie
	}
}

func pick(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}

// Report renders a plain-text analytics report for rec, dated at.
func Report(rec Record, at time.Time) string {
	p := message.NewPrinter(language.English)
	m := ComputeMetrics(rec)

	var b strings.Builder
	b.WriteString("Instagram Analytics Report\n\n")
	p.Fprintf(&b, "Account: @%s\n", rec.Username)
	p.Fprintf(&b, "Generated: %s\n\n", at.Format("2006-01-02"))
	b.WriteString("Performance Metrics:\n")
	p.Fprintf(&b, "- Likes: %d\n", rec.LikeCount)
	p.Fprintf(&b, "- Comments: %d\n", rec.CommentCount)
	p.Fprintf(&b, "- Views: %d\n", rec.ViewCount)
	p.Fprintf(&b, "- Followers: %d\n\n", rec.Followers)
	fmt.Fprintf(&b, "Engagement Rate: %.2f%%\n\n", m.Engagement)
	fmt.Fprintf(&b, "Caption: %s\n", rec.Caption)
	return b.String()
}

// ReportFilename is the download name for rec's report.
func ReportFilename(rec Record) string {
	return fmt.Sprintf("instagram-analytics-%s.txt", rec.Username)
}
