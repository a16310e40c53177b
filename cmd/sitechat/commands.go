package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sitechat/sitechat/server"
	"github.com/sitechat/sitechat/vectorstore/memory"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func crawlCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "crawl [url]",
		Short: "Crawl a website and save the page data",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed := a.cfg.Crawl.StartURL
			if len(args) > 0 {
				seed = args[0]
			}
			if seed == "" {
				return errors.New("no URL given and crawl.start_url is not configured")
			}
			if output == "" {
				output = a.cfg.Crawl.OutputFile
			}

			ctx, cancel := signalContext()
			defer cancel()

			p, err := a.buildPipeline(memory.New(), true)
			if err != nil {
				return err
			}
			pages, err := p.CrawlToFile(ctx, seed, output)
			if err != nil {
				return err
			}
			fmt.Printf("Crawled %d pages to %s\n", pages, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Crawl output file (default from config)")
	return cmd
}

func chunkCmd(a *app) *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:   "chunk",
		Short: "Chunk crawled page data into indexable pieces",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				input = a.cfg.Crawl.OutputFile
			}
			if output == "" {
				output = a.cfg.Chunk.ChunksFile
			}

			p, err := a.buildPipeline(memory.New(), false)
			if err != nil {
				return err
			}
			chunks, err := p.ChunkFile(input, output)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %d chunks to %s\n", chunks, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Crawl data file (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Chunks output file (default from config)")
	return cmd
}

func ingestCmd(a *app) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed and index chunks into the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				input = a.cfg.Chunk.ChunksFile
			}

			ctx, cancel := signalContext()
			defer cancel()

			store, err := a.buildStore()
			if err != nil {
				return err
			}
			p, err := a.buildPipeline(store, false)
			if err != nil {
				return err
			}
			indexed, err := p.IngestChunkFile(ctx, input)
			if err != nil {
				return err
			}
			fmt.Printf("Indexed %d chunks from %s\n", indexed, input)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Chunks file (default from config)")
	return cmd
}

func ingestFilesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest-files <pattern>",
		Short: "Parse, embed, and index local files matching a glob pattern",
		Long: `Parse, embed, and index local files matching a glob pattern.

Supports .txt, .md, and .pdf files. The pattern uses doublestar syntax,
e.g. "docs/**/*.md".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			store, err := a.buildStore()
			if err != nil {
				return err
			}
			p, err := a.buildPipeline(store, false)
			if err != nil {
				return err
			}
			indexed, err := p.IngestFiles(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Indexed %d chunks from files matching %s\n", indexed, args[0])
			return nil
		},
	}
	return cmd
}

func chatCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the indexed site on the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			store, err := a.buildStore()
			if err != nil {
				return err
			}
			engine, err := a.buildEngine(store)
			if err != nil {
				return err
			}

			fmt.Println("Chat initialized. Type 'exit' or 'quit' to stop.")
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("\nYou: ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				question := strings.TrimSpace(scanner.Text())
				if question == "" {
					continue
				}
				if lower := strings.ToLower(question); lower == "exit" || lower == "quit" {
					return nil
				}

				fmt.Print("Assistant: ")
				err := engine.QueryStream(ctx, question, func(fragment string) error {
					fmt.Print(fragment)
					return nil
				})
				fmt.Println()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					fmt.Printf("An error occurred: %v\n", err)
				}
			}
		},
	}
	return cmd
}

func serveCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat and ingestion HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			ctx, cancel := signalContext()
			defer cancel()

			store, err := a.buildStore()
			if err != nil {
				return err
			}
			engine, err := a.buildEngine(store)
			if err != nil {
				return err
			}
			pipeline, err := a.buildPipeline(store, true)
			if err != nil {
				return err
			}

			srv, err := server.New(server.Config{Addr: addr}, engine, pipeline,
				server.WithLogger(a.logger))
			if err != nil {
				return err
			}

			// Optionally index the configured site before serving.
			if a.cfg.Crawl.StartURL != "" {
				if _, err := pipeline.IngestSite(ctx, a.cfg.Crawl.StartURL); err != nil {
					a.logger.Warn("initial site ingestion failed",
						"url", a.cfg.Crawl.StartURL,
						"error", err)
				}
			}

			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}
