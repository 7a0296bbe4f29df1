package model

type Answer struct {
	Text     string `json:"answer"`
	Grounded bool   `json:"grounded"`
}
