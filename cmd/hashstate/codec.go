package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vango-go/hashstate/internal/config"
	"github.com/vango-go/hashstate/internal/errors"
	"github.com/vango-go/hashstate/pkg/fragment"
	"github.com/vango-go/hashstate/pkg/hashstate"
)

// textCodec converts between a value's command-line text and its stored
// form. For JSON codecs the text is JSON.
type textCodec struct {
	encode func(text string) (string, error)
	decode func(encoded string) (string, error)
}

func codecByName(name string) (textCodec, error) {
	switch name {
	case "", config.CodecString:
		c := hashstate.StringCodec{}
		return textCodec{encode: c.Encode, decode: c.Decode}, nil
	case config.CodecJSON:
		return jsonTextCodec(hashstate.JSONCodec[any]{}), nil
	case config.CodecBase64JSON:
		return jsonTextCodec(hashstate.Base64JSONCodec[any]{}), nil
	}
	return textCodec{}, errors.New("H301").WithDetail("unknown codec " + name)
}

func jsonTextCodec(c hashstate.Codec[any]) textCodec {
	return textCodec{
		encode: func(text string) (string, error) {
			var v any
			if err := json.Unmarshal([]byte(text), &v); err != nil {
				return "", errors.New("H303").Wrap(err).WithDetail("input is not valid JSON")
			}
			return c.Encode(v)
		},
		decode: func(encoded string) (string, error) {
			v, err := c.Decode(encoded)
			if err != nil {
				return "", err
			}
			data, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}
}

func encodeCmd() *cobra.Command {
	var (
		codecName string
		key       string
	)

	cmd := &cobra.Command{
		Use:   "encode <value>",
		Short: "Encode a value the way a binding stores it",
		Long: `Encode a value the way a binding stores it.

Without --key the encoded component is printed. With --key the full
fragment holding that single key is printed, as it appears in the URL.

Examples:
  hashstate encode 'go lang'
  hashstate encode --codec=json --key=filters '{"tags":["a","b"]}'`,
		Args: exactArg("value"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := codecByName(codecName)
			if err != nil {
				return err
			}
			encoded, err := c.encode(args[0])
			if err != nil {
				return errors.FromError(err, "H303")
			}

			out := cmd.OutOrStdout()
			if key == "" {
				fmt.Fprintln(out, encoded)
				return nil
			}
			var v fragment.Values
			v.Set(key, encoded)
			fmt.Fprintln(out, v.Encode())
			return nil
		},
	}

	cmd.Flags().StringVar(&codecName, "codec", config.CodecString, "Codec (string, json, base64json)")
	cmd.Flags().StringVarP(&key, "key", "k", "", "Print a fragment holding the value under this key")

	return cmd
}

func decodeCmd() *cobra.Command {
	var (
		codecName string
		key       string
	)

	cmd := &cobra.Command{
		Use:   "decode <encoded|fragment|url>",
		Short: "Decode a stored value",
		Long: `Decode a stored value.

Without --key the argument is an encoded component. With --key it is a
fragment or URL and the value stored under that key is decoded.

Examples:
  hashstate decode 'go%20lang'
  hashstate decode --codec=json --key=filters 'https://example.com/#filters=%257B%257D'`,
		Args: exactArg("encoded value, fragment or URL"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := codecByName(codecName)
			if err != nil {
				return err
			}

			encoded := args[0]
			if key != "" {
				v, ok := fragment.Parse(fragmentOf(args[0])).Get(key)
				if !ok {
					return errors.New("H302").WithDetail("key " + key + " is not in the fragment")
				}
				encoded = v
			}

			decoded, err := c.decode(encoded)
			if err != nil {
				return errors.New("H302").Wrap(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), decoded)
			return nil
		},
	}

	cmd.Flags().StringVar(&codecName, "codec", config.CodecString, "Codec (string, json, base64json)")
	cmd.Flags().StringVarP(&key, "key", "k", "", "Decode the value stored under this key")

	return cmd
}
