package models

type Hospital struct {
	ID      string `json:"id"`
	NameEN  string `json:"nameEN"`
	NameTH  string `json:"nameTH,omitempty"`
	Address string `json:"address,omitempty"`
}
