package process

import (
	"runtime"
	"strings"

	"github.com/srodi/framelens/pkg/types"
)

// defaultAllowed are launchers, engines and titles that are always monitorable.
var defaultAllowed = []string{
	"Steam.exe", "EpicGamesLauncher.exe", "GalaxyClient.exe",
	"Battle.net.exe", "UbisoftConnect.exe", "Origin.exe",
	"EADesktop.exe", "RiotClientServices.exe", "LeagueClient.exe",
	"GOGGalaxy.exe", "PlayniteUI.exe", "GameBarPresenceWriter.exe",
	"UnrealEngine.exe", "UnrealEditor.exe", "Unity.exe",
	"CryEngine.exe", "GameOverlayUI.exe", "CoherentUI.exe",
	"FortniteClient-Win64-Shipping.exe", "VALORANT-Win64-Shipping.exe",
	"r5apex.exe", "GTA5.exe", "RocketLeague.exe", "CSGO.exe",
	"Minecraft.exe", "MinecraftLauncher.exe", "javaw.exe",
	"League of Legends.exe", "Overwatch.exe", "WorldOfWarcraft.exe",
	"destiny2.exe", "RainbowSix.exe", "FallGuys_client.exe",
	"DiscordCanary.exe", "DiscordPTB.exe",
	"GeForceExperience.exe", "RadeonSoftware.exe",
	"AMDRSServ.exe", "Overwolf.exe", "obs64.exe",
	"ShadowPlay.exe", "MSIAfterburner.exe",
}

// defaultDenied are system services, shells, browsers and desktop tools.
var defaultDenied = []string{
	"svchost.exe", "csrss.exe", "winlogon.exe", "services.exe",
	"lsass.exe", "fontdrvhost.exe", "smss.exe", "dwm.exe",
	"taskhost.exe", "explorer.exe", "sihost.exe", "taskmgr.exe",
	"devenv.exe", "chrome.exe", "firefox.exe", "msedge.exe",
	"notepad.exe", "cmd.exe", "powershell.exe", "conhost.exe",
	"RuntimeBroker.exe", "SearchHost.exe", "ShellExperienceHost.exe",
	"spoolsv.exe", "wininit.exe", "wmiprvse.exe", "SearchIndexer.exe",
	"Registry.exe", "dllhost.exe", "Taskmgr.exe", "mmc.exe",
	"WmiPrvSE.exe", "ctfmon.exe", "SearchUI.exe", "browser_broker.exe",
	"ApplicationFrameHost.exe", "WindowsTerminal.exe", "Code.exe",
	"python.exe", "pythonw.exe", "wsl.exe", "bash.exe",
	"nvidia-smi.exe", "discord.exe", "slack.exe", "spotify.exe",
	"mspaint.exe", "calc.exe", "wordpad.exe", "winrar.exe",
	"7zFM.exe", "vlc.exe", "zoom.exe", "skype.exe",
}

// defaultPathFragments are lower-case fragments of game-distribution install
// locations.
var defaultPathFragments = []string{
	"steam", "games", "epic games",
	"riot games", "origin games",
	`program files\steam`,
	`program files (x86)\steam`,
}

// exeSuffix is the suffix an executable path must carry to be considered.
var exeSuffix = platformExeSuffix(runtime.GOOS)

func platformExeSuffix(goos string) string {
	if goos == "windows" {
		return ".exe"
	}
	return ""
}

// Classifier decides which processes are monitorable games. Names match
// exactly; path fragments match case-insensitively as substrings.
type Classifier struct {
	allowed   map[string]struct{}
	denied    map[string]struct{}
	fragments []string
}

// NewClassifier builds a classifier from explicit lists.
func NewClassifier(allowed, denied, fragments []string) *Classifier {
	c := &Classifier{
		allowed: make(map[string]struct{}, len(allowed)),
		denied:  make(map[string]struct{}, len(denied)),
	}
	for _, name := range allowed {
		c.allowed[name] = struct{}{}
	}
	for _, name := range denied {
		c.denied[name] = struct{}{}
	}
	for _, frag := range fragments {
		frag = strings.ToLower(strings.TrimSpace(frag))
		if frag != "" {
			c.fragments = append(c.fragments, frag)
		}
	}
	return c
}

// DefaultClassifier returns the built-in lists extended with extra entries.
func DefaultClassifier(extraAllowed, extraDenied, extraFragments []string) *Classifier {
	return NewClassifier(
		append(append([]string{}, defaultAllowed...), extraAllowed...),
		append(append([]string{}, defaultDenied...), extraDenied...),
		append(append([]string{}, defaultPathFragments...), extraFragments...),
	)
}

// Classify applies the rules in order: allow-list, deny-list, path fragment,
// otherwise unclassified.
func (c *Classifier) Classify(name, path string) types.Classification {
	if _, ok := c.allowed[name]; ok {
		return types.ClassAllowed
	}
	if _, ok := c.denied[name]; ok {
		return types.ClassExcluded
	}
	lower := strings.ToLower(path)
	for _, frag := range c.fragments {
		if strings.Contains(lower, frag) {
			return types.ClassHeuristicMatch
		}
	}
	return types.ClassUnclassified
}

func hasExeSuffix(path string) bool {
	if path == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(path), exeSuffix)
}
