package fourchan

// boardDescriptions maps worksafe and non-worksafe board identifiers to their
// upstream titles. Boards missing here are still valid; they simply have no
// default channel topic.
var boardDescriptions = map[string]string{
	"3":   "3DCG",
	"a":   "Anime & Manga",
	"an":  "Animals & Nature",
	"asp": "Alternative Sports",
	"b":   "Random",
	"biz": "Business & Finance",
	"c":   "Anime/Cute",
	"cgl": "Cosplay & EGL",
	"ck":  "Cooking",
	"cm":  "Cute/Male",
	"co":  "Comics & Cartoons",
	"diy": "Do-It-Yourself",
	"f":   "Flash",
	"fa":  "Fashion",
	"fit": "Health & Fitness",
	"g":   "Technology",
	"gd":  "Graphic Design",
	"i":   "Oekaki",
	"ic":  "Artwork/Critique",
	"int": "International",
	"jp":  "Otaku Culture",
	"k":   "Weapons",
	"m":   "Mecha",
	"mu":  "Music",
	"n":   "Transportation",
	"o":   "Auto",
	"out": "Outdoors",
	"p":   "Photography",
	"po":  "Papercraft & Origami",
	"pol": "Politically Incorrect",
	"sci": "Science & Math",
	"sp":  "Sports",
	"tg":  "Traditional Games",
	"toy": "Toys",
	"tv":  "Television & Film",
	"u":   "Yuri",
	"v":   "Video Games",
	"vg":  "Video Game Generals",
	"vp":  "Pokemon",
	"vr":  "Retro Games",
	"w":   "Anime/Wallpapers",
	"wg":  "Wallpapers/General",
	"wsg": "Worksafe GIF",
}

// BoardDescription returns the human readable title of a board and whether
// the board is known.
func BoardDescription(board string) (string, bool) {
	d, ok := boardDescriptions[board]
	return d, ok
}
