package entity

type Poll struct {
	Question    string       `bson:"question" json:"question"`
	IsAnonymous bool         `bson:"isAnonymous" json:"isAnonymous"`
	Options     []PollOption `bson:"options" json:"options"`
}

type PollOption struct {
	Text     string   `bson:"text" json:"text"`
	VoterIds []string `bson:"voterIds" json:"voterIds"`
}

// HasVoted reports whether userId voted for any option.
func (p *Poll) HasVoted(userId string) bool {
	for i := range p.Options {
		for _, v := range p.Options[i].VoterIds {
			if v == userId {
				return true
			}
		}
	}
	return false
}
