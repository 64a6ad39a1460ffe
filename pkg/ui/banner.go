package ui

import "strings"

const (
	reset      = "\033[0m"
	bold       = "\033[1m"
	dim        = "\033[2m"
	lensCyan   = "\033[38;5;51m"
	skyBlue    = "\033[38;5;39m"
	cobalt     = "\033[38;5;33m"
	violet     = "\033[38;5;99m"
	magenta    = "\033[38;5;170m"
	coral      = "\033[38;5;209m"
	frameAmber = "\033[38;5;214m"
)

// Banner renders the colored framelens wordmark.
func Banner() string {
	var b strings.Builder

	letters := [][]string{
		{"███████╗", "██╔════╝", "█████╗  ", "██╔══╝  ", "██║     ", "╚═╝     "},
		{"██████╗ ", "██╔══██╗", "██████╔╝", "██╔══██╗", "██║  ██║", "╚═╝  ╚═╝"},
		{" █████╗ ", "██╔══██╗", "███████║", "██╔══██║", "██║  ██║", "╚═╝  ╚═╝"},
		{"███╗   ███╗", "████╗ ████║", "██╔████╔██║", "██║╚██╔╝██║", "██║ ╚═╝ ██║", "╚═╝     ╚═╝"},
		{"███████╗", "██╔════╝", "█████╗  ", "██╔══╝  ", "███████╗", "╚══════╝"},
		{"██╗     ", "██║     ", "██║     ", "██║     ", "███████╗", "╚══════╝"},
		{"███████╗", "██╔════╝", "█████╗  ", "██╔══╝  ", "███████╗", "╚══════╝"},
		{"███╗   ██╗", "████╗  ██║", "██╔██╗ ██║", "██║╚██╗██║", "██║ ╚████║", "╚═╝  ╚═══╝"},
		{"███████╗", "██╔════╝", "███████╗", "╚════██║", "███████║", "╚══════╝"},
	}
	// "FRAME" and "LENS" get separate gradients.
	gradient := []string{frameAmber, coral, magenta, violet, frameAmber, lensCyan, skyBlue, cobalt, violet}
	rows := make([]string, len(letters[0]))
	for i, letter := range letters {
		color := gradient[i%len(gradient)]
		for row := range letter {
			rows[row] += color + letter[row] + " "
		}
	}
	for _, line := range rows {
		b.WriteString(bold + line + reset + "\n")
	}

	b.WriteString("\n")
	b.WriteString(bold + frameAmber + "frame" + lensCyan + "lens" + reset + dim + "  •  game performance lens" + reset + "\n\n")

	return b.String()
}
