// Command tiersearch stands in for the access-method dispatch layer the
// core assumes but does not implement (spec.md §1): build, query, compact,
// and stats subcommands driving the library against a directory of
// index files on disk.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wizenheimer/tiersearch"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tiersearch",
		Short: "BM25 tiered-segment ranking index core",
	}
	root.AddCommand(buildCmd(), queryCmd(), compactCmd(), statsCmd())
	return root
}

func openStore(dir, name string) (*tiersearch.FilePageStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return tiersearch.OpenFilePageStore(filepath.Join(dir, name+".idx"))
}

func buildCmd() *cobra.Command {
	var dir, name, configPath, corpusPath string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a new index from a newline-delimited text corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.Default()

			opts := tiersearch.DefaultIndexOptions()
			opts.TextConfig = "default"
			if configPath != "" {
				loaded, err := tiersearch.LoadIndexOptions(configPath)
				if err != nil {
					return err
				}
				opts = loaded
			}

			rows, err := readCorpus(corpusPath)
			if err != nil {
				return err
			}

			store, err := openStore(dir, name)
			if err != nil {
				return err
			}
			defer store.Close()

			scanner := tiersearch.NewSliceHeapScanner(rows)
			registry := tiersearch.NewRegistry()
			reg := prometheus.NewRegistry()

			idx, result, err := tiersearch.CreateIndex(context.Background(), name, store, opts, scanner, registry, reg, log)
			if err != nil {
				return err
			}
			defer idx.Drop(registry)

			fmt.Printf("indexed %d heap rows, %d index rows\n", result.HeapRows, result.IndexRows)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "./data", "directory to store index files")
	cmd.Flags().StringVar(&name, "name", "default", "index name")
	cmd.Flags().StringVar(&configPath, "config", "", "optional YAML config path")
	cmd.Flags().StringVar(&corpusPath, "corpus", "", "newline-delimited text file, one document per line")
	cmd.MarkFlagRequired("corpus")
	return cmd
}

func queryCmd() *cobra.Command {
	var dir, name string
	var limit int
	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Run a BM25 top-K query against an existing index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.Default()
			opts := tiersearch.DefaultIndexOptions()
			opts.TextConfig = "default"

			store, err := openStore(dir, name)
			if err != nil {
				return err
			}
			defer store.Close()

			registry := tiersearch.NewRegistry()
			reg := prometheus.NewRegistry()
			idx, err := tiersearch.OpenIndex(name, store, opts, registry, reg, log)
			if err != nil {
				return err
			}
			defer idx.Drop(registry)

			idx.SetLimit(limit)
			results, stats, err := idx.Search(args[0])
			if err != nil {
				return err
			}
			for i, r := range results {
				fmt.Printf("%d. doc=%d score=%.4f\n", i+1, r.Doc.Uint64(), r.Score)
			}
			fmt.Printf("docs_scored=%d blocks_skipped=%d blocks_scanned=%d\n", stats.DocsScored, stats.BlocksSkipped, stats.BlocksScanned)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "./data", "directory holding index files")
	cmd.Flags().StringVar(&name, "name", "default", "index name")
	cmd.Flags().IntVar(&limit, "limit", tiersearch.DefaultQueryLimit, "query LIMIT")
	return cmd
}

func compactCmd() *cobra.Command {
	var dir, name string
	var level int
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Force a compaction check starting at a given level",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.Default()
			store, err := openStore(dir, name)
			if err != nil {
				return err
			}
			defer store.Close()

			mp, err := tiersearch.LoadMetapage(store)
			if err != nil {
				return err
			}
			compactor := tiersearch.NewCompactor(store, tiersearch.DefaultFanout, log)
			merges, err := compactor.MaybeCompact(mp, level)
			if err != nil {
				return err
			}
			fmt.Printf("performed %d merge(s)\n", merges)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "./data", "directory holding index files")
	cmd.Flags().StringVar(&name, "name", "default", "index name")
	cmd.Flags().IntVar(&level, "level", 0, "level to start the compaction check at")
	return cmd
}

func statsCmd() *cobra.Command {
	var dir, name string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print metapage corpus statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(dir, name)
			if err != nil {
				return err
			}
			defer store.Close()

			mp, err := tiersearch.LoadMetapage(store)
			if err != nil {
				return err
			}
			fmt.Printf("total_docs=%d total_terms=%d total_len=%d avg_len=%.2f k1=%.2f b=%.2f\n",
				mp.TotalDocs, mp.TotalTerms, mp.TotalLen, mp.AvgDocLength(), mp.K1, mp.B)
			for lvl := 0; lvl < tiersearch.Lmax; lvl++ {
				if mp.LevelCounts[lvl] > 0 {
					fmt.Printf("  level %d: %d segment(s)\n", lvl, mp.LevelCounts[lvl])
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "./data", "directory holding index files")
	cmd.Flags().StringVar(&name, "name", "default", "index name")
	return cmd
}

func readCorpus(path string) ([]tiersearch.HeapRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []tiersearch.HeapRow
	var id uint64
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		id++
		rows = append(rows, tiersearch.HeapRow{Doc: tiersearch.DocRefFromUint64(id), Text: line})
	}
	return rows, sc.Err()
}
