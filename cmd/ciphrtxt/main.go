// Command ciphrtxt is a thin CLI over the curve/keys/message/nak/relay
// packages: key generation, message encode/decode, and relay post/fetch,
// mirroring ciphrtxt-lib's cli-examples scripts, in a single-binary,
// flat-command urfave/cli/v2 style.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ciphrtxt/go-ciphrtxt/curve"
	"github.com/ciphrtxt/go-ciphrtxt/keys"
	"github.com/ciphrtxt/go-ciphrtxt/message"
	"github.com/ciphrtxt/go-ciphrtxt/nak"
	"github.com/ciphrtxt/go-ciphrtxt/relay"
)

func main() {
	app := &cli.App{
		Name:  "ciphrtxt",
		Usage: "rotating-identity store-and-forward messaging",
		Commands: []*cli.Command{
			keygenCmd,
			encodeCmd,
			decodeCmd,
			postCmd,
			fetchCmd,
			checkCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var keygenCmd = &cli.Command{
	Name:  "keygen",
	Usage: "generate a fresh rotating keypair",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "rotations", Value: 4, Usage: "number of rotation terms (otp, t pairs) in the key"},
		&cli.StringFlag{Name: "name", Usage: "client-local label attached to the key"},
	},
	Action: runKeygen,
}

func runKeygen(ctx *cli.Context) error {
	c := curve.NewContext()
	now := time.Now().Unix()
	priv, err := keys.Randomize(c, ctx.Int("rotations"), now)
	if err != nil {
		return fmt.Errorf("keygen: %w", err)
	}
	if name := ctx.String("name"); name != "" {
		priv.Name = name
	}
	pub, err := priv.CalcPublicKey(c)
	if err != nil {
		return fmt.Errorf("keygen: %w", err)
	}

	fmt.Fprintln(ctx.App.Writer, priv.Serialize())
	fmt.Fprintln(ctx.App.Writer, pub.Serialize(c))
	return nil
}

var encodeCmd = &cli.Command{
	Name:  "encode",
	Usage: "encrypt stdin to a recipient, writing the wire message to stdout",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "to", Required: true, Usage: "recipient's serialized public key"},
		&cli.StringFlag{Name: "from", Usage: "sender's serialized private key (omit to send anonymously)"},
		&cli.StringFlag{Name: "version", Value: "v1", Usage: "wire version: v1 or v2"},
		&cli.IntFlag{Name: "pow-bits", Value: message.DefaultPoWBits, Usage: "v2 proof-of-work difficulty"},
		&cli.DurationFlag{Name: "ttl", Value: message.DefaultTTL, Usage: "validity window"},
	},
	Action: runEncode,
}

func runEncode(ctx *cli.Context) error {
	c := curve.NewContext()
	pub, err := keys.DeserializePublicKey(c, ctx.String("to"))
	if err != nil {
		return fmt.Errorf("encode: recipient key: %w", err)
	}

	var priv *keys.PrivateKey
	if from := ctx.String("from"); from != "" {
		priv, err = keys.DeserializePrivateKey(from)
		if err != nil {
			return fmt.Errorf("encode: sender key: %w", err)
		}
	}

	version, err := parseVersion(ctx.String("version"))
	if err != nil {
		return err
	}

	ptxt, err := io.ReadAll(ctx.App.Reader)
	if err != nil {
		return fmt.Errorf("encode: reading plaintext: %w", err)
	}

	opts := message.Options{TTL: ctx.Duration("ttl"), Version: version, NBits: ctx.Int("pow-bits")}
	m, err := message.Encode(context.Background(), c, ptxt, pub, priv, opts)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	fmt.Fprintln(ctx.App.Writer, m.Serialize(c))
	return nil
}

var decodeCmd = &cli.Command{
	Name:  "decode",
	Usage: "decrypt a wire message from stdin using a private key",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "key", Required: true, Usage: "recipient's serialized private key"},
	},
	Action: runDecode,
}

func runDecode(ctx *cli.Context) error {
	c := curve.NewContext()
	priv, err := keys.DeserializePrivateKey(ctx.String("key"))
	if err != nil {
		return fmt.Errorf("decode: key: %w", err)
	}

	wire, err := io.ReadAll(ctx.App.Reader)
	if err != nil {
		return fmt.Errorf("decode: reading message: %w", err)
	}
	m, err := message.Deserialize(c, string(trimNewline(wire)))
	if err != nil {
		return fmt.Errorf("decode: malformed message: %w", err)
	}
	if !m.Decode(c, priv) {
		return errors.New("decode: not for this recipient or signature invalid")
	}

	ctx.App.Writer.Write(m.Ptxt)
	return nil
}

var postCmd = &cli.Command{
	Name:  "post",
	Usage: "post a wire message (from stdin) to a relay",
	Flags: relayFlags(),
	Action: func(ctx *cli.Context) error {
		c := curve.NewContext()
		client := relayClientFromFlags(c, ctx)

		wire, err := io.ReadAll(ctx.App.Reader)
		if err != nil {
			return fmt.Errorf("post: reading message: %w", err)
		}
		m, err := message.Deserialize(c, string(trimNewline(wire)))
		if err != nil {
			return fmt.Errorf("post: malformed message: %w", err)
		}
		if err := client.PostMessage(ctx.Context, m); err != nil {
			return fmt.Errorf("post: %w", err)
		}
		return nil
	},
}

var fetchCmd = &cli.Command{
	Name:  "fetch",
	Usage: "list or download headers from a relay",
	Flags: append(relayFlags(), &cli.StringFlag{Name: "id", Usage: "compressed hex of a header's I point; downloads that message instead of listing headers"}),
	Action: func(ctx *cli.Context) error {
		c := curve.NewContext()
		client := relayClientFromFlags(c, ctx)

		headers, err := client.GetHeaders(ctx.Context)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}

		id := ctx.String("id")
		if id == "" {
			for _, h := range headers {
				fmt.Fprintf(ctx.App.Writer, "%08x %s\n", h.Time, c.CompressHex(h.I))
			}
			return nil
		}

		for _, h := range headers {
			if c.CompressHex(h.I) == id {
				m, err := client.GetMessage(ctx.Context, h)
				if err != nil {
					return fmt.Errorf("fetch: %w", err)
				}
				fmt.Fprintln(ctx.App.Writer, m.Serialize(c))
				return nil
			}
		}
		return errors.New("fetch: no such header in the synced cache")
	},
}

var checkCmd = &cli.Command{
	Name:      "check",
	Usage:     "validate a serialized key or NAK and print its fields",
	ArgsUsage: "<serialized>",
	Action: func(ctx *cli.Context) error {
		if ctx.Args().Len() < 1 {
			return errors.New("check: expected one argument")
		}
		c := curve.NewContext()
		s := ctx.Args().First()

		if pub, err := keys.DeserializePublicKey(c, s); err == nil {
			fmt.Fprintf(ctx.App.Writer, "public key: mask=%08x target=%08x\n", pub.Addr.Mask, pub.Addr.Target)
			return nil
		}
		if priv, err := keys.DeserializePrivateKey(s); err == nil {
			fmt.Fprintf(ctx.App.Writer, "private key: mask=%08x target=%08x\n", priv.Addr.Mask, priv.Addr.Target)
			return nil
		}
		if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
			if n, err := nak.Deserialize(c, raw); err == nil {
				fmt.Fprintf(ctx.App.Writer, "nak: pubkey=%s expire=%d\n", c.CompressHex(n.Pubkey), n.Expire)
				return nil
			}
		}
		if n, err := nak.LoadJSON(c, []byte(s)); err == nil {
			fmt.Fprintf(ctx.App.Writer, "nak: pubkey=%s expire=%d\n", c.CompressHex(n.Pubkey), n.Expire)
			return nil
		}
		return errors.New("check: not a recognized serialized key or nak")
	},
}

func relayFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "host", Required: true, Usage: "relay host"},
		&cli.IntFlag{Name: "port", Value: relay.DefaultPort, Usage: "relay port"},
	}
}

func relayClientFromFlags(c *curve.Context, ctx *cli.Context) *relay.Client {
	return relay.NewClient(c, ctx.String("host"), ctx.Int("port"))
}

func parseVersion(s string) (message.Version, error) {
	switch s {
	case "v1", "":
		return message.V1, nil
	case "v2":
		return message.V2, nil
	default:
		return 0, fmt.Errorf("encode: unknown version %q", s)
	}
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
