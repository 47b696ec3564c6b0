package cmd

import (
	"fmt"
	"log/slog"
	"maps"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ConstantWangheng/sentencepiece/convert"
	"github.com/ConstantWangheng/sentencepiece/envconfig"
	"github.com/ConstantWangheng/sentencepiece/logutil"
	"github.com/ConstantWangheng/sentencepiece/model"
	"github.com/ConstantWangheng/sentencepiece/server"
)

func loadProcessor(cmd *cobra.Command) (model.SentencePiece, error) {
	path, _ := cmd.Flags().GetString("model")
	if path == "" {
		return model.SentencePiece{}, fmt.Errorf("--model is required")
	}

	vocab, err := convert.Load(path)
	if err != nil {
		return model.SentencePiece{}, fmt.Errorf("loading %s: %w", path, err)
	}

	pre, _ := cmd.Flags().GetString("pretokenizer")
	return model.NewSentencePiece(pre, vocab), nil
}

func EncodeHandler(cmd *cobra.Command, args []string) error {
	spm, err := loadProcessor(cmd)
	if err != nil {
		return err
	}

	// The argument is either literal text or a path to a file of text.
	text := args[0]
	if fi, err := os.Stat(text); err == nil && fi.Mode().IsRegular() {
		data, err := os.ReadFile(text)
		if err != nil {
			return err
		}
		text = strings.TrimRight(string(data), "\n")
	}

	w := cmd.OutOrStdout()

	if useIDs, _ := cmd.Flags().GetBool("ids"); useIDs {
		ids, err := spm.Encode(text, false)
		if err != nil {
			return err
		}

		for i, id := range ids {
			if i > 0 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprintf(w, "%d", id)
		}
		fmt.Fprintln(w)
		return nil
	}

	alpha, _ := cmd.Flags().GetFloat32("alpha")
	for _, token := range spm.SampleEncode(text, alpha) {
		fmt.Fprintf(w, "%d\t%q\n", token.ID, token.Piece)
	}

	return nil
}

func VocabHandler(cmd *cobra.Command, args []string) error {
	spm, err := loadProcessor(cmd)
	if err != nil {
		return err
	}

	vocab := spm.Vocabulary()
	counter := map[int32]int{}
	for _, t := range vocab.Types {
		counter[t]++
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding(" ")
	table.AppendBulk([][]string{
		{"pieces:", strconv.Itoa(len(vocab.Values))},
		{"normal:", strconv.Itoa(counter[model.TOKEN_TYPE_NORMAL])},
		{"unknown:", strconv.Itoa(counter[model.TOKEN_TYPE_UNKNOWN])},
		{"control:", strconv.Itoa(counter[model.TOKEN_TYPE_CONTROL])},
		{"user defined:", strconv.Itoa(counter[model.TOKEN_TYPE_USER_DEFINED])},
		{"unused:", strconv.Itoa(counter[model.TOKEN_TYPE_UNUSED])},
		{"byte:", strconv.Itoa(counter[model.TOKEN_TYPE_BYTE])},
	})
	table.Render()

	return nil
}

func ServeHandler(cmd *cobra.Command, args []string) error {
	spm, err := loadProcessor(cmd)
	if err != nil {
		return err
	}

	host, err := envconfig.Host()
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", host)
	if err != nil {
		return err
	}

	return server.Serve(ln, spm)
}

func NewCLI() *cobra.Command {
	level := slog.LevelInfo
	if envconfig.Debug {
		level = slog.LevelDebug
	}
	if envconfig.Trace {
		level = logutil.LevelTrace
	}
	slog.SetDefault(logutil.NewLogger(os.Stderr, level))

	rootCmd := &cobra.Command{
		Use:   "spm",
		Short: "Subword tokenizer with BPE-dropout",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SilenceUsage = true
		},
	}

	rootCmd.PersistentFlags().StringP("model", "m", "", "Path to a tokenizer.model or .vocab file")
	rootCmd.PersistentFlags().String("pretokenizer", "", "Regex applied to split input before segmentation")

	cobra.EnableCommandSorting = false

	encodeCmd := &cobra.Command{
		Use:   "encode [TEXT|file]",
		Short: "Segment text into (piece, id) pairs",
		Args:  cobra.ExactArgs(1),
		RunE:  EncodeHandler,
	}
	encodeCmd.Flags().Float32("alpha", 0, "BPE-dropout probability in [0,1]")
	encodeCmd.Flags().Bool("ids", false, "Print only vocabulary ids, deterministically")

	vocabCmd := &cobra.Command{
		Use:   "vocab",
		Short: "Summarize the loaded vocabulary",
		RunE:  VocabHandler,
	}

	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the tokenizer server",
		RunE:    ServeHandler,
	}

	envs := envconfig.AsMap()
	var envDocs strings.Builder
	for _, name := range slices.Sorted(maps.Keys(envs)) {
		fmt.Fprintf(&envDocs, "    %-18s %s\n", name, envs[name].Description)
	}
	serveCmd.SetUsageTemplate(serveCmd.UsageTemplate() + "\nEnvironment Variables:\n\n" + envDocs.String())

	rootCmd.AddCommand(encodeCmd, vocabCmd, serveCmd)

	return rootCmd
}
