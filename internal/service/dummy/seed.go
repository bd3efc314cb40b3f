package dummy

// seedParticipant describes a participant created on every reset.
type seedParticipant struct {
	key      string
	name     string
	jobTitle string
	bio      string
	avatar   string
}

// seedMessage is an opening message. replyTo refers to an earlier seed
// message by index, or -1.
type seedMessage struct {
	author  string
	text    string
	replyTo int
	image   bool
}

func seedParticipants() []seedParticipant {
	return []seedParticipant{
		{
			key:      "harry",
			name:     "Harry Potter",
			jobTitle: "Auror",
			bio:      "Raised by the Dursleys, found out at eleven. Plays seeker, hates Mondays.",
			avatar:   "https://dummyimage.com/128x128/7f0909/fff&text=HP",
		},
		{
			key:      "socrates",
			name:     "Socrates",
			jobTitle: "Philosopher",
			bio:      "Asks more questions than he answers. Usually found in the agora.",
			avatar:   "https://dummyimage.com/128x128/1f3a93/fff&text=S",
		},
		{
			key:      "tony",
			name:     "Tony Stark",
			jobTitle: "CEO, Stark Industries",
			bio:      "Genius, billionaire, philanthropist. Builds suits in the garage.",
			avatar:   "https://dummyimage.com/128x128/b8860b/fff&text=TS",
		},
	}
}

func seedMessages() []seedMessage {
	return []seedMessage{
		{author: "socrates", text: "Friends, what brings you to the tavern tonight?", replyTo: -1},
		{author: "harry", text: "Butterbeer, mostly. And a question about curfews.", replyTo: -1},
		{author: "tony", text: "I brought a prototype. Nobody touch the red button.", replyTo: -1, image: true},
		{author: "socrates", text: "And what, Tony, is the red button for?", replyTo: 2},
		{author: "tony", text: "Great question. Next.", replyTo: -1},
	}
}
