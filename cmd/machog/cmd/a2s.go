package cmd

import (
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/machog/machog/internal/utils"
	"github.com/machog/machog/pkg/macho"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(a2sCmd)
}

// a2sCmd represents the a2s command
var a2sCmd = &cobra.Command{
	Use:           "a2s <mach-o> <address>",
	Short:         "Lookup symbol at unslid address",
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

		addr, err := utils.ConvertStrToInt(args[1])
		if err != nil {
			return err
		}

		if seg := img.FindSegmentForVMAddr(addr); seg != nil {
			if sect := img.FindSectionForVMAddr(seg, addr); sect != nil {
				log.WithFields(log.Fields{
					"section": fmt.Sprintf("%s.%s", seg.Name, sect.Name),
				}).Info("Address location")
			} else {
				log.WithFields(log.Fields{"segment": seg.Name}).Info("Address location")
			}
		}

		st := img.Symtab()
		if st == nil {
			return fmt.Errorf("%s has no symbol table", args[0])
		}

		name, size, offset, err := img.ResolveAddress(st, addr)
		if errors.Is(err, macho.ErrNotFound) {
			log.Error("no symbol found")
			return nil
		} else if err != nil {
			return err
		}

		if offset == 0 {
			fmt.Printf("\n%#x: %s (size: %d)\n", addr, name, size)
		} else {
			fmt.Printf("\n%#x: %s + %d (size: %d)\n", addr, name, offset, size)
		}

		return nil
	},
}
