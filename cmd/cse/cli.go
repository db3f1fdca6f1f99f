package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cavestory-tools/cse/internal/config"
	"github.com/cavestory-tools/cse/internal/history"
	"github.com/cavestory-tools/cse/internal/mapinfo"
	"github.com/cavestory-tools/cse/internal/npctbl"
	"github.com/cavestory-tools/cse/internal/profile"
	"github.com/cavestory-tools/cse/internal/textenc"
	"github.com/cavestory-tools/cse/internal/tsc"
	"github.com/cavestory-tools/cse/internal/util"
	"github.com/cavestory-tools/cse/internal/worker"
)

func usage() {
	fmt.Printf(`cse %s (%s)

Usage:
  cse new <normal|plus> <profile>
  cse fields [--slot N] <profile>
  cse methods [--slot N] <profile>
  cse get [--slot N] <profile> <field> [index]
  cse set [--slot N] <profile> <field> <index|-> <value>
  cse call [--slot N] <profile> <method> [args...]
  cse slots <profile>
  cse map <file> <tileset> <background> <npc sheet 1> <npc sheet 2>
  cse tsc <script> [event]
  cse history [profile] [limit]
  cse dump <path>

--slot selects the active slot of a Plus profile before the command runs.
Config is read from %s in $CSE_CONFIG_DIR or the working directory.
`, CurrentVersion, BuildDate, config.FileName)
}

func run(command string, args []string) error {
	switch command {
	case "new":
		return newProfile(args)
	case "fields":
		return listFields(args)
	case "methods":
		return listMethods(args)
	case "get":
		return getField(args)
	case "set":
		return setField(args)
	case "call":
		return callMethod(args)
	case "slots":
		return listSlots(args)
	case "map":
		return showMap(args)
	case "tsc":
		return showScript(args)
	case "history":
		return showHistory(args)
	case "dump":
		return dumpHistory(args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func need(args []string, n int, what string) error {
	if len(args) < n {
		return fmt.Errorf("missing arguments, expected %s", what)
	}
	return nil
}

// await blocks for the worker's result and binds loaded profiles.
func await() (worker.Result, error) {
	res := <-workerManager.Results()
	if err := worker.Apply(res, profileManager); err != nil {
		return res, fmt.Errorf("%s %s: %w", res.Op, res.Path, err)
	}
	Logger.Info("File operation finished", "op", res.Op.String(), "path", res.Path, "duration", res.Duration)
	return res, nil
}

// slotOption strips a leading --slot N or --slot=N from args. Without one
// the slot is -1 and the profile keeps the slot it loaded with.
func slotOption(args []string) (int, []string, error) {
	if len(args) == 0 {
		return -1, args, nil
	}
	var value string
	switch {
	case args[0] == "--slot" || args[0] == "-slot":
		if len(args) < 2 {
			return -1, nil, fmt.Errorf("missing value for --slot")
		}
		value, args = args[1], args[2:]
	case strings.HasPrefix(args[0], "--slot="):
		value, args = strings.TrimPrefix(args[0], "--slot="), args[1:]
	default:
		return -1, args, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return -1, nil, fmt.Errorf("invalid slot %q", value)
	}
	return n, args, nil
}

// loadProfile loads path and, when slot is not negative, makes it the
// active slot.
func loadProfile(path string, slot int) error {
	if err := workerManager.Load(path); err != nil {
		return err
	}
	if _, err := await(); err != nil {
		return err
	}
	if slot < 0 {
		return nil
	}
	if !profileManager.HasMethod(profile.MethodActiveSet) {
		return fmt.Errorf("profile %s has a single slot", path)
	}
	_, err := profileManager.CallMethod(profile.MethodActiveSet, slot)
	return err
}

func saveProfile() error {
	p := profileManager.Active()
	if err := workerManager.Save(p, p.Path()); err != nil {
		return err
	}
	_, err := await()
	return err
}

func newProfile(args []string) error {
	if err := need(args, 2, "variant and path"); err != nil {
		return err
	}
	variant := profile.VariantNormal
	switch strings.ToLower(args[0]) {
	case "normal":
	case "plus":
		variant = profile.VariantPlus
	default:
		return fmt.Errorf("unknown variant %q", args[0])
	}

	if err := profileManager.Create(variant); err != nil {
		return err
	}
	if err := workerManager.Save(profileManager.Active(), args[1]); err != nil {
		return err
	}
	if _, err := await(); err != nil {
		return err
	}
	fmt.Printf("Created %s profile %s\n", variant, args[1])
	return nil
}

func listFields(args []string) error {
	slot, args, err := slotOption(args)
	if err != nil {
		return err
	}
	if err := need(args, 1, "profile"); err != nil {
		return err
	}
	if err := loadProfile(args[0], slot); err != nil {
		return err
	}

	reg := profileManager.Active().Registry()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tTYPE\tCOUNT")
	for _, name := range reg.Fields() {
		f, _ := reg.Field(name)
		fmt.Fprintf(w, "%s\t%s\t%d\n", name, f.Type, f.Count)
	}
	return w.Flush()
}

func listMethods(args []string) error {
	slot, args, err := slotOption(args)
	if err != nil {
		return err
	}
	if err := need(args, 1, "profile"); err != nil {
		return err
	}
	if err := loadProfile(args[0], slot); err != nil {
		return err
	}

	reg := profileManager.Active().Registry()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tARGS\tRETURNS")
	for _, name := range reg.Methods() {
		m, _ := reg.Method(name)
		types := make([]string, len(m.Args))
		for i, t := range m.Args {
			types[i] = t.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, strings.Join(types, ","), m.Returns)
	}
	return w.Flush()
}

func getField(args []string) error {
	slot, args, err := slotOption(args)
	if err != nil {
		return err
	}
	if err := need(args, 2, "profile and field"); err != nil {
		return err
	}
	index := profile.NoIndex
	if len(args) > 2 {
		if index, err = util.ParseIndex(args[2]); err != nil {
			return err
		}
	}
	if err := loadProfile(args[0], slot); err != nil {
		return err
	}

	v, err := profileManager.GetField(args[1], index)
	if err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", util.FormatField(args[1], index), util.FormatValue(v))
	return nil
}

func setField(args []string) error {
	slot, args, err := slotOption(args)
	if err != nil {
		return err
	}
	if err := need(args, 4, "profile, field, index and value"); err != nil {
		return err
	}
	index, err := util.ParseIndex(args[2])
	if err != nil {
		return err
	}
	if err := loadProfile(args[0], slot); err != nil {
		return err
	}

	t, err := profileManager.FieldType(args[1])
	if err != nil {
		return err
	}
	v, err := util.ParseValue(t, args[3])
	if err != nil {
		return err
	}
	old, err := profileManager.GetField(args[1], index)
	if err != nil {
		return err
	}
	if err := profileManager.SetField(args[1], index, v); err != nil {
		return err
	}
	if err := saveProfile(); err != nil {
		return err
	}
	fmt.Printf("%s: %s -> %s\n", util.FormatField(args[1], index), util.FormatValue(old), util.FormatValue(v))
	return nil
}

func callMethod(args []string) error {
	slot, args, err := slotOption(args)
	if err != nil {
		return err
	}
	if err := need(args, 2, "profile and method"); err != nil {
		return err
	}
	if err := loadProfile(args[0], slot); err != nil {
		return err
	}

	types, err := profileManager.MethodArgTypes(args[1])
	if err != nil {
		return err
	}
	values, err := util.ParseArgs(types, args[2:])
	if err != nil {
		return err
	}
	result, err := profileManager.CallMethod(args[1], values...)
	if err != nil {
		return err
	}
	if profileManager.Modified() {
		if err := saveProfile(); err != nil {
			return err
		}
	}
	if result != nil {
		fmt.Println(util.FormatValue(result))
	}
	return nil
}

func listSlots(args []string) error {
	if err := need(args, 1, "profile"); err != nil {
		return err
	}
	if err := loadProfile(args[0], -1); err != nil {
		return err
	}
	if !profileManager.HasMethod(profile.MethodExists) {
		fmt.Println("Profile has a single slot")
		return nil
	}

	sections := profileManager.Active().Registry().Sections()
	for i := 0; i < sections; i++ {
		exists, err := profileManager.CallMethod(profile.MethodExists, i)
		if err != nil {
			return err
		}
		marker := " "
		if i == profileManager.Active().Section() {
			marker = "*"
		}
		fmt.Printf("%s %d %s\n", marker, i, util.FormatValue(exists))
	}
	return nil
}

func showMap(args []string) error {
	if err := need(args, 5, "file, tileset, background and both NPC sheets"); err != nil {
		return err
	}
	gameCfg := config.GetGameConfig()
	layout := mapinfo.Layout{
		DataDir:      gameCfg.DataDir,
		StageDir:     gameCfg.StageFolder,
		NPCDir:       gameCfg.NPCFolder,
		LoadEntities: gameCfg.LoadEntities,
	}

	var types *npctbl.Table
	if layout.LoadEntities {
		var err error
		types, err = npctbl.Open(Fs, filepath.Join(gameCfg.DataDir, gameCfg.NPCTable))
		if err != nil {
			Logger.Warn("Entity table unavailable", "error", err)
		}
	}

	src := mapinfo.Source{
		FileName:   args[0],
		Tileset:    args[1],
		Background: args[2],
		NPCSheet1:  args[3],
		NPCSheet2:  args[4],
		Name:       args[0],
	}
	m := mapinfo.Load(Fs, src, layout, assetCache, types, Logger)
	Logger.Debug("Map loaded", "file", src.FileName, "assetReads", assetCache.Loads())

	fmt.Printf("%s: %dx%d tiles\n", src.FileName, m.Width(), m.Height())
	if m.HasMissingAssets() {
		fmt.Printf("Missing: %s\n", m.MissingAssets())
	}
	entities, ok := m.Entities()
	if !ok {
		fmt.Println("Entities: unavailable")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "X\tY\tTYPE\tEVENT\tFLAG ID\tFLAGS")
	for _, e := range entities {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%#04x\n", e.X, e.Y, e.Type, e.Event, e.FlagID, e.EffectiveFlags())
	}
	return w.Flush()
}

func showScript(args []string) error {
	if err := need(args, 1, "script path"); err != nil {
		return err
	}
	enc, err := textenc.Lookup(config.GetGameConfig().Encoding)
	if err != nil {
		return err
	}
	f, err := tsc.Open(Fs, args[0], enc, Logger)
	if err != nil {
		return err
	}

	if len(args) > 1 {
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid event %q", args[1])
		}
		text, ok := f.Event(id)
		if !ok {
			return fmt.Errorf("event %04d not found", id)
		}
		fmt.Println(text)
		return nil
	}

	for _, id := range f.EventIDs() {
		text, _ := f.Event(id)
		first, _, _ := strings.Cut(text, "\n")
		fmt.Printf("#%04d %s\n", id, first)
	}
	return nil
}

// showHistory prints the newest journal entries, or with a profile path
// as first argument, that profile's entries oldest first.
func showHistory(args []string) error {
	if historyManager == nil {
		return fmt.Errorf("history journal is disabled")
	}
	var path string
	if len(args) > 0 {
		if _, err := strconv.Atoi(args[0]); err != nil {
			path, args = args[0], args[1:]
		}
	}
	limit := config.GetInt("history.limit")
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		limit = n
	}

	var changes []history.Change
	var err error
	if path != "" {
		changes, err = historyManager.ForProfile(path)
		if len(changes) > limit {
			changes = changes[len(changes)-limit:]
		}
	} else {
		changes, err = historyManager.Recent(limit)
	}
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tPROFILE\tSLOT\tKIND\tFIELD\tOLD\tNEW")
	for _, c := range changes {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			c.Time.Local().Format(time.DateTime), c.Profile, c.Slot, c.Kind,
			util.FormatField(c.Field, c.Index), c.Old(), c.New())
	}
	return w.Flush()
}

func dumpHistory(args []string) error {
	if err := need(args, 1, "path"); err != nil {
		return err
	}
	if historyManager == nil {
		return fmt.Errorf("history journal is disabled")
	}
	if err := historyManager.DumpToDisk(args[0]); err != nil {
		return err
	}
	fmt.Println("Wrote history to", args[0])
	return nil
}
