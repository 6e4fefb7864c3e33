package campaign

import (
	"encoding/json"
	"reflect"
	"testing"
)

func validDraft() Draft {
	return Draft{
		Title:          "Summer Sale Push",
		TargetAudience: "Returning customers aged 25-40",
		Message: Message{
			Headline: "Summer deals are live",
			Body:     "Up to 40% off bestsellers this week only.",
			CallToAction: &CallToAction{
				Label: "Shop now",
				URL:   "https://shop.example.com/summer",
			},
		},
		Channels: []Channel{ChannelEmail, ChannelPush},
		Timeline: Timeline{StartDate: "2026-06-01", EndDate: "2026-06-14"},
		Budget:   "$5,000",
		ExpectedMetrics: Metrics{
			OpenRate:       0.35,
			ClickRate:      0.12,
			ConversionRate: 0.04,
			ROI:            2.8,
		},
	}
}

func TestClassifyIsTotal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace", "   \n\t"},
		{"plain text", "Please connect your store first."},
		{"malformed json", `{"campaign_title": "x",`},
		{"json array", `["not", "a", "campaign"]`},
		{"valid json wrong schema", `{"foo": 1, "bar": [true]}`},
		{"missing metrics", `{"campaign_title":"t","target_audience":"a","message":{"headline":"h","body":"b"},"channels":["email"],"timeline":{"start_date":"2026-01-01","end_date":"2026-01-31"},"budget":"$1","expected_metrics":{"open_rate":0.1}}`},
		{"unknown channel", `{"campaign_title":"t","target_audience":"a","message":{"headline":"h","body":"b"},"channels":["carrier_pigeon"],"timeline":{"start_date":"2026-01-01","end_date":"2026-01-31"},"budget":"$1","expected_metrics":{"open_rate":0.1,"click_rate":0.1,"conversion_rate":0.1,"roi":1}}`},
		{"empty channels", `{"campaign_title":"t","target_audience":"a","message":{"headline":"h","body":"b"},"channels":[],"timeline":{"start_date":"2026-01-01","end_date":"2026-01-31"},"budget":"$1","expected_metrics":{"open_rate":0.1,"click_rate":0.1,"conversion_rate":0.1,"roi":1}}`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res := Classify(tc.raw)
			if res.IsCampaign() {
				t.Fatalf("Classify(%q) classified as campaign", tc.raw)
			}
			if res.Text != tc.raw {
				t.Fatalf("Classify() text = %q, want original input", res.Text)
			}
		})
	}
}

func TestClassifyRoundTrip(t *testing.T) {
	t.Parallel()

	want := validDraft()
	raw, err := json.Marshal(&want)
	if err != nil {
		t.Fatalf("marshal draft: %v", err)
	}

	res := Classify(string(raw))
	if !res.IsCampaign() {
		t.Fatal("Classify() did not recognize a valid campaign")
	}
	if !reflect.DeepEqual(*res.Draft, want) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", *res.Draft, want)
	}
}

func TestClassifyAcceptsMissingCallToAction(t *testing.T) {
	t.Parallel()

	d := validDraft()
	d.Message.CallToAction = nil
	raw, err := d.JSON()
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}

	res := Classify(raw)
	if !res.IsCampaign() {
		t.Fatal("call_to_action must be optional")
	}
}

func TestClassifyZeroMetricsAllowed(t *testing.T) {
	t.Parallel()

	d := validDraft()
	d.ExpectedMetrics = Metrics{}
	raw, err := d.JSON()
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}

	if !Classify(raw).IsCampaign() {
		t.Fatal("explicit zero metrics must validate; only absent keys are invalid")
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	t.Parallel()

	d := validDraft()
	raw, err := d.JSON()
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}

	first := Classify(raw)
	second := Classify(raw)
	if first.IsCampaign() != second.IsCampaign() {
		t.Fatal("classification changed between identical inputs")
	}
	if !reflect.DeepEqual(first.Draft, second.Draft) {
		t.Fatal("draft changed between identical inputs")
	}
}
