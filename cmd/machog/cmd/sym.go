package cmd

import (
	"fmt"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(symCmd)
	rootCmd.AddCommand(symsCmd)
}

// symCmd represents the sym command
var symCmd = &cobra.Command{
	Use:           "sym <mach-o> <symbol>",
	Short:         "Lookup a symbol's address and guessed size",
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		img, err := openImage(args[0])
		if err != nil {
			return err
		}

		st := img.Symtab()
		if st == nil {
			return fmt.Errorf("%s has no symbol table", args[0])
		}

		addr, size, err := img.ResolveSymbol(st, args[1])
		if err != nil {
			return errors.Wrapf(err, "failed to resolve symbol %s", args[1])
		}

		fmt.Printf("%#x: %s (size: %d)\n", addr, args[1], size)

		return nil
	},
}

// symsCmd represents the syms command
var symsCmd = &cobra.Command{
	Use:           "syms <mach-o>",
	Short:         "List the image's resolvable symbols",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		img, err := openImage(args[0])
		if err != nil {
			return err
		}

		st := img.Symtab()
		if st == nil {
			return fmt.Errorf("%s has no symbol table", args[0])
		}

		for name, addr := range img.Symbols(st) {
			fmt.Printf("%#09x: %s\n", addr, name)
		}

		return nil
	},
}
