package broker

import "testing"

func TestMachineTopic(t *testing.T) {
	if got, want := MachineTopic(1, 5), "iot/plant1/machine5"; got != want {
		t.Fatalf("MachineTopic = %q, want %q", got, want)
	}
}

func TestTopicMatches(t *testing.T) {
	cases := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"iot/#", "iot/plant1/machine1", true},
		{"iot/#", "iot/plant1", true},
		{"#", "anything/at/all", true},
		{"iot/+/machine1", "iot/plant1/machine1", true},
		{"iot/+/machine1", "iot/plant1/machine2", false},
		{"iot/plant1/machine1", "iot/plant1/machine1", true},
		{"iot/plant1/machine1", "iot/plant1", false},
		{"iot/plant1", "iot/plant1/machine1", false},
		{"iot/+", "iot/plant1/machine1", false},
	}
	for _, tc := range cases {
		if got := topicMatches(tc.filter, tc.topic); got != tc.want {
			t.Fatalf("topicMatches(%q, %q) = %v, want %v", tc.filter, tc.topic, got, tc.want)
		}
	}
}
